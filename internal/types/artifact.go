package types

import (
	"encoding/hex"
	"time"

	"golang.org/x/crypto/blake2b"
)

// ArtifactKind identifies what an artifact contains
type ArtifactKind string

// Artifact kinds, one per built-in pipeline step
const (
	ArtifactBrief      ArtifactKind = "brief"
	ArtifactAnalysis   ArtifactKind = "analysis"
	ArtifactDocument   ArtifactKind = "document"
	ArtifactWireframe  ArtifactKind = "wireframe"
	ArtifactPrototype  ArtifactKind = "prototype"
	ArtifactVideo      ArtifactKind = "video"
	ArtifactMessageSet ArtifactKind = "message_set"
	ArtifactReport     ArtifactKind = "report"
)

// Valid reports whether k is a known artifact kind.
func (k ArtifactKind) Valid() bool {
	switch k {
	case ArtifactBrief, ArtifactAnalysis, ArtifactDocument, ArtifactWireframe,
		ArtifactPrototype, ArtifactVideo, ArtifactMessageSet, ArtifactReport:
		return true
	}
	return false
}

// Artifact is an immutable record of generated content held outside the run tracker
type Artifact struct {
	Kind        ArtifactKind `json:"type"`
	Step        string       `json:"step,omitempty"`
	Locator     string       `json:"locator"`
	Size        int64        `json:"size"`
	ContentType string       `json:"content_type"`
	Checksum    string       `json:"checksum"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Checksum returns the hex BLAKE2b-256 digest of data.
func Checksum(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}
