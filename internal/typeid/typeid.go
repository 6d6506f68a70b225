package typeid

import (
	"fmt"

	"go.jetify.com/typeid/v2"
)

const (
	PrefixMap          = "map"
	PrefixMapItemGroup = "grp"
	PrefixMapItem      = "item"
	PrefixPath         = "path"
	PrefixChangeSet    = "cs"
	PrefixViewer       = "viewer"
)

func New(prefix string) string {
	id := typeid.MustGenerate(prefix)
	return id.String()
}

func NewMapID() string          { return New(PrefixMap) }
func NewMapItemGroupID() string { return New(PrefixMapItemGroup) }
func NewMapItemID() string      { return New(PrefixMapItem) }
func NewPathID() string         { return New(PrefixPath) }
func NewChangeSetID() string    { return New(PrefixChangeSet) }
func NewViewerID() string       { return New(PrefixViewer) }

func Validate(id, expectedPrefix string) error {
	parsed, err := typeid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid typeid %q: %w", id, err)
	}
	if parsed.Prefix() != expectedPrefix {
		return fmt.Errorf("expected prefix %q but got %q in id %q", expectedPrefix, parsed.Prefix(), id)
	}
	return nil
}
