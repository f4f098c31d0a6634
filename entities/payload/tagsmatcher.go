//                           _       _
// __      _____  __ ___   ___  __ _| |_ ___
// \ \ /\ / / _ \/ _` \ \ / / |/ _` | __/ _ \
//  \ V  V /  __/ (_| |\ V /| | (_| | ||  __/
//   \_/\_/ \___|\__,_| \_/ |_|\__,_|\__\___|
//
//  Copyright © 2016 - 2024 Weaviate B.V. All rights reserved.
//
//  CONTACT: hello@weaviate.io
//

package payload

import (
	"strings"

	"github.com/weaviate/kestrel/entities/binser"
	"github.com/weaviate/kestrel/entities/dberrors"
)

// Tag identifies one distinct JSON name within a namespace. Tags are dense
// 16-bit integers starting at 1; tag 0 is "no tag".
type Tag uint16

// TagsPath addresses a nested JSON location as a sequence of name tags.
type TagsPath []Tag

func (p TagsPath) Equal(other TagsPath) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// ArrayIndex values for IndexedPathNode.
const (
	IndexNotSet      = -1
	IndexForAllItems = -2 // the [*] selector
)

// IndexedPathNode is one step of an update-expression path: a name tag plus
// an optional array subscript.
type IndexedPathNode struct {
	NameTag Tag
	Index   int
}

// TagsMatcher assigns tags to JSON names. A name once tagged keeps its tag
// for the namespace's lifetime; tags are only ever added. The version is
// bumped on every addition so the persisted copy can be refreshed.
type TagsMatcher struct {
	names2tags map[string]Tag
	tags2names []string
	version    int32
	stateToken int32
	updated    bool
}

func NewTagsMatcher() *TagsMatcher {
	return &TagsMatcher{names2tags: make(map[string]Tag)}
}

func (tm *TagsMatcher) Version() int32 { return tm.version }

// IsUpdated reports whether tags were added since the last ResetUpdated;
// the namespace uses it to decide when to persist a new version.
func (tm *TagsMatcher) IsUpdated() bool { return tm.updated }

func (tm *TagsMatcher) ResetUpdated() { tm.updated = false }

// Name2Tag returns the tag for name, optionally creating it.
func (tm *TagsMatcher) Name2Tag(name string, canAdd bool) Tag {
	if tag, ok := tm.names2tags[name]; ok {
		return tag
	}
	if !canAdd {
		return 0
	}
	tag := Tag(len(tm.tags2names) + 1)
	tm.names2tags[name] = tag
	tm.tags2names = append(tm.tags2names, name)
	tm.version++
	tm.updated = true
	return tag
}

func (tm *TagsMatcher) Tag2Name(tag Tag) string {
	if tag == 0 || int(tag) > len(tm.tags2names) {
		return ""
	}
	return tm.tags2names[tag-1]
}

// Path2Tags converts a dotted json path into a TagsPath.
func (tm *TagsMatcher) Path2Tags(jsonPath string, canAdd bool) (TagsPath, error) {
	var tp TagsPath
	for _, part := range strings.Split(jsonPath, ".") {
		if part == "" {
			return nil, dberrors.Params("empty node in json path %q", jsonPath)
		}
		tag := tm.Name2Tag(part, canAdd)
		if tag == 0 {
			return nil, dberrors.NotFound("tag for json path node %q not found", part)
		}
		tp = append(tp, tag)
	}
	return tp, nil
}

func (tm *TagsMatcher) Tags2Path(tp TagsPath) string {
	parts := make([]string, len(tp))
	for i, tag := range tp {
		parts[i] = tm.Tag2Name(tag)
	}
	return strings.Join(parts, ".")
}

// TryMerge folds the names of other into tm. It fails when other maps an
// already-known name to a different tag, which means the two matchers
// diverged structurally.
func (tm *TagsMatcher) TryMerge(other *TagsMatcher) bool {
	for i, name := range other.tags2names {
		tag := Tag(i + 1)
		if existing, ok := tm.names2tags[name]; ok {
			if existing != tag {
				return false
			}
			continue
		}
		// only appends keep both sides consistent
		if int(tag) != len(tm.tags2names)+1 {
			return false
		}
		tm.names2tags[name] = tag
		tm.tags2names = append(tm.tags2names, name)
		tm.version++
		tm.updated = true
	}
	return true
}

func (tm *TagsMatcher) Clone() *TagsMatcher {
	nt := &TagsMatcher{
		names2tags: make(map[string]Tag, len(tm.names2tags)),
		tags2names: append([]string(nil), tm.tags2names...),
		version:    tm.version,
		stateToken: tm.stateToken,
	}
	for k, v := range tm.names2tags {
		nt.names2tags[k] = v
	}
	return nt
}

func (tm *TagsMatcher) Serialize(w *binser.Writer) {
	w.PutUInt32(uint32(tm.version))
	w.PutVarUInt(uint64(len(tm.tags2names)))
	for _, name := range tm.tags2names {
		w.PutVString(name)
	}
}

func TagsMatcherFromBytes(r *binser.Reader) (*TagsMatcher, error) {
	tm := NewTagsMatcher()
	tm.version = int32(r.UInt32())
	n := r.VarUInt()
	for i := uint64(0); i < n; i++ {
		name := r.VString()
		tm.tags2names = append(tm.tags2names, name)
		tm.names2tags[name] = Tag(i + 1)
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return tm, nil
}
