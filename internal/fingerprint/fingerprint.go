// Package fingerprint computes the stable identifiers the rest of the
// indexing pipeline keys off of: project identity, collection names, file
// content hashes, and deterministic document ids.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// documentNamespace is the fixed namespace UUID documents are derived from.
// It has no meaning beyond giving NewSHA1 a stable seed; changing it would
// change every document id already stored in existing collections.
var documentNamespace = uuid.MustParse("6f7e6e4e-6e1a-4b0a-9c2d-6d6f5c6a7b8c")

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// ProjectID returns the first 8 hex characters of the SHA-256 of the
// canonicalized project root path.
func ProjectID(rootPath string) (string, error) {
	abs, err := filepath.Abs(rootPath)
	if err != nil {
		return "", fmt.Errorf("resolve project root: %w", err)
	}
	clean := filepath.Clean(abs)
	sum := sha256.Sum256([]byte(clean))
	return hex.EncodeToString(sum[:])[:8], nil
}

// CollectionName derives the vector store collection name from the project
// id and the embedding model name. Changing the embedding model therefore
// forces a fresh collection, as required by the data model.
func CollectionName(projectID, modelName string) string {
	safeModel := sanitize(modelName)
	return fmt.Sprintf("idx-%s-%s", projectID, safeModel)
}

func sanitize(s string) string {
	s = strings.ToLower(s)
	s = nonAlnum.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// FileHash returns the SHA-256 hex digest of file content.
func FileHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// DocumentID returns the deterministic UUID-v5 identifier for a document,
// derived from (projectID, filePath, chunkIndex, docKind).
func DocumentID(projectID, filePath string, chunkIndex int, docKind string) uuid.UUID {
	key := fmt.Sprintf("%s|%s|%d|%s", projectID, filePath, chunkIndex, docKind)
	return uuid.NewSHA1(documentNamespace, []byte(key))
}
