package vfs

import (
	ignore "github.com/sabhiram/go-gitignore"
	log "github.com/sirupsen/logrus"

	"metabridge/internal/common"
)

// MappingOracle answers whether memory mappings of a node allow a size
// change or a delete. The pipelines consult it before posting.
type MappingOracle interface {
	// CanTruncate reports whether node may be resized to newSize.
	CanTruncate(node *FileNode, newSize uint64) bool
	// FlushImageForDelete drops any executable image mapping of node and
	// reports whether its disposition may change. It is asked on every
	// disposition set, including one that clears the delete flag.
	FlushImageForDelete(node *FileNode) bool
}

// AllowAll is the oracle for volumes with no mappings.
type AllowAll struct{}

func (AllowAll) CanTruncate(*FileNode, uint64) bool  { return true }
func (AllowAll) FlushImageForDelete(*FileNode) bool { return true }

// PatternOracle treats files matching gitignore-style patterns as mapped.
// Files matching Mapped cannot be truncated below their cached size; files
// matching Image cannot be deleted.
type PatternOracle struct {
	mapped *ignore.GitIgnore
	image  *ignore.GitIgnore
}

// NewPatternOracle compiles the two pattern lists. Empty lists match nothing.
func NewPatternOracle(mapped, image []string) *PatternOracle {
	o := &PatternOracle{}
	if len(mapped) > 0 {
		o.mapped = ignore.CompileIgnoreLines(mapped...)
	}
	if len(image) > 0 {
		o.image = ignore.CompileIgnoreLines(image...)
	}
	return o
}

func matches(gi *ignore.GitIgnore, node *FileNode) bool {
	if gi == nil {
		return false
	}
	p := common.ProviderPath(node.FileName)
	if node.IsDirectory {
		p += "/"
	}
	return gi.MatchesPath(p)
}

// CanTruncate allows growing a mapped file but not shrinking it.
func (o *PatternOracle) CanTruncate(node *FileNode, newSize uint64) bool {
	if !matches(o.mapped, node) {
		return true
	}
	rec, _, ok := node.CachedInfo()
	if ok && newSize >= rec.FileSize {
		return true
	}
	log.Debugf("[Oracle] truncate of mapped %s to %d denied", node.FileName, newSize)
	return false
}

func (o *PatternOracle) FlushImageForDelete(node *FileNode) bool {
	if matches(o.image, node) {
		log.Debugf("[Oracle] delete of image %s denied", node.FileName)
		return false
	}
	return true
}
