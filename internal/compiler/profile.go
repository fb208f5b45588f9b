package compiler

import (
	_ "embed"
	"fmt"
	"os"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/dirsync/internal/model"
)

//go:embed schema.cue
var schemaSource string

//go:embed default.cue
var defaultSource []byte

// DefaultProfileName is the filename reported for the embedded profile.
const DefaultProfileName = "default.cue"

// entitySource mirrors #Entity for decoding.
type entitySource struct {
	SyncFlag        string   `json:"sync_flag"`
	AuthorityFields []string `json:"authority_fields"`
	Collections     struct {
		CV         string `json:"cv"`
		Clone      string `json:"clone"`
		Directorio string `json:"directorio"`
	} `json:"collections"`
}

// profileSource mirrors #Profile for decoding.
type profileSource struct {
	ProtectedPrefix  string                  `json:"protected_prefix"`
	PersonSyncFields []string                `json:"person_sync_fields"`
	OrderSensitive   []string                `json:"order_sensitive"`
	IgnoredFields    []string                `json:"ignored_fields"`
	Entities         map[string]entitySource `json:"entities"`
}

// CompileProfile parses CUE source declaring a "profile" value, checks it
// against the embedded #Profile schema and derives collections and
// relationship types.
// Uses CUE SDK's Go API directly (not CLI subprocess).
func CompileProfile(src []byte, filename string) (*model.Profile, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("embedded schema: %w", err)
	}

	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	pv := v.LookupPath(cue.ParsePath("profile"))
	if !pv.Exists() {
		return nil, &CompileError{
			Field:   "profile",
			Message: "profile is required",
			Pos:     v.Pos(),
		}
	}

	unified := schema.LookupPath(cue.ParsePath("#Profile")).Unify(pv)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	var ps profileSource
	if err := unified.Decode(&ps); err != nil {
		return nil, formatCUEError(err)
	}

	return buildProfile(ps), nil
}

// LoadProfile compiles the profile file at path.
func LoadProfile(path string) (*model.Profile, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	return CompileProfile(src, path)
}

// DefaultProfile compiles the embedded default profile.
func DefaultProfile() (*model.Profile, error) {
	return CompileProfile(defaultSource, DefaultProfileName)
}

// DefaultSource returns the embedded default profile source, for `init`.
func DefaultSource() []byte {
	return slices.Clone(defaultSource)
}

// buildProfile turns decoded source into the runtime profile. Entities are
// processed in name order so derived collections and types are stable.
func buildProfile(ps profileSource) *model.Profile {
	p := &model.Profile{
		ProtectedPrefix:  ps.ProtectedPrefix,
		PersonSyncFields: nonNil(ps.PersonSyncFields),
		OrderSensitive:   nonNil(ps.OrderSensitive),
		IgnoredFields:    nonNil(ps.IgnoredFields),
	}

	names := make([]string, 0, len(ps.Entities))
	for name := range ps.Entities {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		es := ps.Entities[name]
		p.Entities = append(p.Entities, model.EntityProfile{
			Name:            name,
			SyncFlag:        es.SyncFlag,
			AuthorityFields: nonNil(es.AuthorityFields),
		})
		p.Collections = append(p.Collections, deriveCollections(name, es)...)
		p.RelationshipTypes = append(p.RelationshipTypes, deriveRelationshipTypes(name)...)
	}
	return p
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
