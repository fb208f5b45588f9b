package model

// RelationshipKind enumerates the relationship families the sync layer uses.
type RelationshipKind string

const (
	KindClone          RelationshipKind = "clone"
	KindShadowCopy     RelationshipKind = "shadow_copy"
	KindCorrection     RelationshipKind = "correction"
	KindWithdraw       RelationshipKind = "withdraw"
	KindReinstate      RelationshipKind = "reinstate"
	KindMerged         RelationshipKind = "merged"
	KindOriginatedFrom RelationshipKind = "originated_from"
)

// RelationshipKinds lists every kind in a stable order.
var RelationshipKinds = []RelationshipKind{
	KindClone,
	KindShadowCopy,
	KindCorrection,
	KindWithdraw,
	KindReinstate,
	KindMerged,
	KindOriginatedFrom,
}

// RelationshipNames are the leftward/rightward labels of a kind.
// An edge reads "left <Leftward> right", e.g. clone isCloneOfItem cvEntity.
type RelationshipNames struct {
	Leftward  string
	Rightward string
}

var relationshipNames = map[RelationshipKind]RelationshipNames{
	KindClone:          {"isCloneOfItem", "isClonedByItem"},
	KindShadowCopy:     {"isShadowCopy", "hasShadowCopy"},
	KindCorrection:     {"isCorrectionOfItem", "isCorrectedByItem"},
	KindWithdraw:       {"isWithdrawOfItem", "isWithdrawnByItem"},
	KindReinstate:      {"isReinstatementOfItem", "isReinstatedByItem"},
	KindMerged:         {"isMergedInItem", "isMergeOfItem"},
	KindOriginatedFrom: {"isOriginatedFromInItem", "isOriginOfItem"},
}

// Names returns the leftward/rightward labels of k.
func (k RelationshipKind) Names() RelationshipNames {
	return relationshipNames[k]
}

// Valid reports whether k is a known kind.
func (k RelationshipKind) Valid() bool {
	_, ok := relationshipNames[k]
	return ok
}

// KindForLeftward maps a leftward label back to its kind.
func KindForLeftward(leftward string) (RelationshipKind, bool) {
	for k, n := range relationshipNames {
		if n.Leftward == leftward {
			return k, true
		}
	}
	return "", false
}

// RelationshipType is immutable and identified by its 4-tuple.
type RelationshipType struct {
	ID            int64  `json:"id"`
	LeftType      string `json:"left_type"`
	RightType     string `json:"right_type"`
	LeftwardName  string `json:"leftward_name"`
	RightwardName string `json:"rightward_name"`
}

// Relationship is a typed directed edge between two items.
type Relationship struct {
	ID         int64  `json:"id"`
	LeftID     string `json:"left_id"`
	RightID    string `json:"right_id"`
	TypeID     int64  `json:"type_id"`
	LeftPlace  int    `json:"left_place"`
	RightPlace int    `json:"right_place"`
}
