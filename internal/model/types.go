package model

import "strings"

// Entity type naming conventions.
//
//	CvPublication       CV entity curated by a researcher
//	CvPublicationClone  CV-side copy submitted to the Directorio workflow
//	Publication         institutional (Directorio) entity
const (
	cvPrefix          = "Cv"
	institutionPrefix = "Institution"
	cloneSuffix       = "Clone"

	// PersonType is the researcher profile entity.
	PersonType = "CvPerson"
)

// Normalize strips the Institution/Cv prefixes and the Clone suffix,
// yielding the institutional entity type.
func Normalize(entityType string) string {
	t := strings.TrimPrefix(entityType, institutionPrefix)
	t = strings.TrimPrefix(t, cvPrefix)
	return strings.TrimSuffix(t, cloneSuffix)
}

// IsCVSide reports whether entityType belongs to the CV side (entity or clone).
func IsCVSide(entityType string) bool {
	return strings.HasPrefix(entityType, cvPrefix)
}

// IsCVEntity reports whether entityType is a researcher-curated CV entity.
func IsCVEntity(entityType string) bool {
	return IsCVSide(entityType) && !IsClone(entityType)
}

// IsClone reports whether entityType is a CV clone type.
func IsClone(entityType string) bool {
	return IsCVSide(entityType) && strings.HasSuffix(entityType, cloneSuffix)
}

// IsInstitutional reports whether entityType is a Directorio type.
func IsInstitutional(entityType string) bool {
	return entityType != "" && !IsCVSide(entityType)
}

// CVType returns the CV entity type for a normalized type.
func CVType(normalized string) string {
	return cvPrefix + normalized
}

// CloneType returns the clone type for a CV entity or normalized type.
func CloneType(entityType string) string {
	return cvPrefix + Normalize(entityType) + cloneSuffix
}
