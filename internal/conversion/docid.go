package conversion

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// NewDocID derives a document identifier from the file stem and the current
// time, so re-uploading the same file yields a fresh document rather than a
// silent overwrite.
func NewDocID(path string, now time.Time) string {
	stem := FileStem(path)
	seed := fmt.Sprintf("%s_%.6f", stem, float64(now.UnixMicro())/1e6)
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])
}

// FileStem returns the base name of a path without its extension.
func FileStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
