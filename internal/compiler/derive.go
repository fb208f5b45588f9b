package compiler

import (
	"github.com/google/uuid"

	"github.com/roach88/dirsync/internal/model"
)

// collectionNamespace seeds deterministic collection ids, so re-running
// bootstrap against an existing database finds the same rows.
var collectionNamespace = uuid.MustParse("6f1c3a52-8d7e-4b0f-9a51-2c4e7d9b0e13")

// CollectionID returns the deterministic id of the collection holding
// entityType items in scope.
func CollectionID(entityType, scope string) string {
	return uuid.NewSHA1(collectionNamespace, []byte(scope+"/"+entityType)).String()
}

// deriveCollections yields the three collections of an entity: the CV
// entity's, the clone staging one and the institutional one.
func deriveCollections(name string, es entitySource) []model.CollectionDef {
	cvType := model.CVType(name)
	cloneType := model.CloneType(name)

	return []model.CollectionDef{
		{
			ID:         CollectionID(cvType, model.ScopeCV),
			Name:       orDefault(es.Collections.CV, "CV "+name),
			EntityType: cvType,
			Scope:      model.ScopeCV,
		},
		{
			ID:         CollectionID(cloneType, model.ScopeCV),
			Name:       orDefault(es.Collections.Clone, "CV "+name+" clones"),
			EntityType: cloneType,
			Scope:      model.ScopeCV,
		},
		{
			ID:         CollectionID(name, model.ScopeDirectorio),
			Name:       orDefault(es.Collections.Directorio, name),
			EntityType: name,
			Scope:      model.ScopeDirectorio,
		},
	}
}

// deriveRelationshipTypes yields every edge type the sync layer needs for
// one entity:
//
//	clone      CvXClone → CvX
//	shadow     X        → CvXClone
//	originated X        → CvXClone
//	correction, withdraw, reinstate, merged on both CvXClone → CvXClone and X → X
func deriveRelationshipTypes(name string) []model.RelationshipType {
	cvType := model.CVType(name)
	cloneType := model.CloneType(name)

	rt := func(kind model.RelationshipKind, left, right string) model.RelationshipType {
		n := kind.Names()
		return model.RelationshipType{
			LeftType:      left,
			RightType:     right,
			LeftwardName:  n.Leftward,
			RightwardName: n.Rightward,
		}
	}

	out := []model.RelationshipType{
		rt(model.KindClone, cloneType, cvType),
		rt(model.KindShadowCopy, name, cloneType),
		rt(model.KindOriginatedFrom, name, cloneType),
	}
	for _, kind := range []model.RelationshipKind{
		model.KindCorrection,
		model.KindWithdraw,
		model.KindReinstate,
		model.KindMerged,
	} {
		out = append(out, rt(kind, cloneType, cloneType), rt(kind, name, name))
	}
	return out
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
