package ps

import (
	"context"
	"maps"
	"slices"

	"github.com/nickyhof/VersionDB/core"
)

// DefaultCapacity is the number of documents a bag holds before a new
// bag is started at the same folder.
const DefaultCapacity = 100

// Collector records the references written while flushing a StageTree.
type Collector struct {
	Trees     []string
	Bags      []string
	Documents []string

	seen map[string]struct{}
}

func (c *Collector) add(list *[]string, ref string) {
	if c.seen == nil {
		c.seen = make(map[string]struct{})
	}
	if _, ok := c.seen[ref]; ok {
		return
	}
	c.seen[ref] = struct{}{}
	*list = append(*list, ref)
}

// Len returns how many references were collected.
func (c *Collector) Len() int {
	return len(c.Trees) + len(c.Bags) + len(c.Documents)
}

type stageEntry struct {
	ref     string
	content []byte
	staged  bool
}

type stageBag struct {
	ref     string
	entries map[string]*stageEntry
	dirty   bool
}

// stageLevel is the working copy of one folder. It loads its stored
// tree when first entered and its bags when its documents are needed.
type stageLevel struct {
	ref        string
	loaded     bool
	childRefs  map[string]string
	children   map[string]*stageLevel
	bagRefs    []string
	bags       []*stageBag
	bagsLoaded bool
	dirty      bool
}

// StageTree is a mutable overlay over one stored tree.
type StageTree struct {
	objects  *ObjectDatabase
	capacity int
	baseRef  string
	root     *stageLevel
}

func NewStageTree(objects *ObjectDatabase, treeRef string, capacity int) *StageTree {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &StageTree{
		objects:  objects,
		capacity: capacity,
		baseRef:  treeRef,
		root:     &stageLevel{ref: treeRef},
	}
}

// BaseRef returns the reference of the tree the overlay started from.
func (t *StageTree) BaseRef() string {
	return t.baseRef
}

// Capacity returns the bag capacity used by inserts.
func (t *StageTree) Capacity() int {
	return t.capacity
}

// Dirty reports whether anything was staged.
func (t *StageTree) Dirty() bool {
	return t.root.dirty
}

func (t *StageTree) load(ctx context.Context, level *stageLevel) error {
	if level.loaded {
		return nil
	}
	level.childRefs = make(map[string]string)
	level.children = make(map[string]*stageLevel)
	if level.ref != "" {
		tree, err := t.objects.GetTree(ctx, level.ref)
		if err != nil {
			return err
		}
		if tree == nil {
			return &core.CorruptObjectError{Ref: level.ref, Kind: kindTree.String(), Err: errMissingObject}
		}
		for _, entry := range tree.Trees {
			level.childRefs[entry.Name] = entry.Ref
		}
		level.bagRefs = tree.Bags
	}
	level.loaded = true
	return nil
}

func (t *StageTree) loadBags(ctx context.Context, level *stageLevel) error {
	if level.bagsLoaded {
		return nil
	}
	if err := t.load(ctx, level); err != nil {
		return err
	}
	level.bags = make([]*stageBag, 0, len(level.bagRefs))
	for _, bagRef := range level.bagRefs {
		bag, err := t.objects.GetDocumentBag(ctx, bagRef)
		if err != nil {
			return err
		}
		if bag == nil {
			return &core.CorruptObjectError{Ref: bagRef, Kind: kindBag.String(), Err: errMissingObject}
		}
		staged := &stageBag{ref: bagRef, entries: make(map[string]*stageEntry, len(bag.Entries))}
		for _, entry := range bag.Entries {
			staged.entries[entry.Name] = &stageEntry{ref: entry.Ref}
		}
		level.bags = append(level.bags, staged)
	}
	level.bagsLoaded = true
	return nil
}

func (t *StageTree) child(ctx context.Context, level *stageLevel, name string, create bool) (*stageLevel, error) {
	if err := t.load(ctx, level); err != nil {
		return nil, err
	}
	if child, ok := level.children[name]; ok {
		return child, nil
	}
	if ref, ok := level.childRefs[name]; ok {
		child := &stageLevel{ref: ref}
		level.children[name] = child
		return child, nil
	}
	if !create {
		return nil, nil
	}
	child := &stageLevel{
		loaded:     true,
		childRefs:  make(map[string]string),
		children:   make(map[string]*stageLevel),
		bagsLoaded: true,
	}
	level.children[name] = child
	return child, nil
}

// walk returns the levels from the root down to the folder named by
// segments, or nil when a folder is missing and create is false.
func (t *StageTree) walk(ctx context.Context, segments []string, create bool) ([]*stageLevel, error) {
	levels := make([]*stageLevel, 0, len(segments)+1)
	level := t.root
	levels = append(levels, level)
	for _, segment := range segments {
		next, err := t.child(ctx, level, segment, create)
		if err != nil || next == nil {
			return nil, err
		}
		level = next
		levels = append(levels, level)
	}
	return levels, nil
}

func markDirty(levels []*stageLevel) {
	for _, level := range levels {
		level.dirty = true
	}
}

func (t *StageTree) find(level *stageLevel, name string) (*stageBag, *stageEntry) {
	for _, bag := range level.bags {
		if entry, ok := bag.entries[name]; ok {
			return bag, entry
		}
	}
	return nil, nil
}

func (t *StageTree) insert(ctx context.Context, segments []string, entry *stageEntry, mustBeNew bool) (bool, error) {
	if len(segments) == 0 {
		return false, core.ErrInvalidPath
	}
	name := segments[len(segments)-1]
	levels, err := t.walk(ctx, segments[:len(segments)-1], true)
	if err != nil {
		return false, err
	}
	level := levels[len(levels)-1]
	if err := t.loadBags(ctx, level); err != nil {
		return false, err
	}

	if bag, _ := t.find(level, name); bag != nil {
		if mustBeNew {
			return true, core.ErrAlreadyExists
		}
		bag.entries[name] = entry
		bag.dirty = true
		markDirty(levels)
		return true, nil
	}

	var target *stageBag
	for _, bag := range level.bags {
		if len(bag.entries) < t.capacity {
			target = bag
			break
		}
	}
	if target == nil {
		target = &stageBag{entries: make(map[string]*stageEntry)}
		level.bags = append(level.bags, target)
	}
	target.entries[name] = entry
	target.dirty = true
	markDirty(levels)
	return false, nil
}

// AddDocument stages content at segments. It reports whether a document
// already existed there; with mustBeNew an existing document fails with
// core.ErrAlreadyExists and nothing changes.
func (t *StageTree) AddDocument(ctx context.Context, segments []string, content []byte, mustBeNew bool) (bool, error) {
	return t.insert(ctx, segments, &stageEntry{content: slices.Clone(content), staged: true}, mustBeNew)
}

// AddReference stages an already stored document at segments.
func (t *StageTree) AddReference(ctx context.Context, segments []string, docRef string, mustBeNew bool) (bool, error) {
	return t.insert(ctx, segments, &stageEntry{ref: docRef}, mustBeNew)
}

// RemoveDocument removes the document at segments and reports whether
// it existed. Emptied bags and folders are kept.
func (t *StageTree) RemoveDocument(ctx context.Context, segments []string) (bool, error) {
	if len(segments) == 0 {
		return false, core.ErrInvalidPath
	}
	name := segments[len(segments)-1]
	levels, err := t.walk(ctx, segments[:len(segments)-1], false)
	if err != nil || levels == nil {
		return false, err
	}
	level := levels[len(levels)-1]
	if err := t.loadBags(ctx, level); err != nil {
		return false, err
	}
	bag, _ := t.find(level, name)
	if bag == nil {
		return false, nil
	}
	delete(bag.entries, name)
	bag.dirty = true
	markDirty(levels)
	return true, nil
}

// RemoveFolder drops the folder at segments with everything below it
// and returns the paths of the documents it held. The result is nil
// only when the folder does not exist.
func (t *StageTree) RemoveFolder(ctx context.Context, segments []string) ([]string, error) {
	if len(segments) == 0 {
		return nil, core.ErrInvalidPath
	}
	name := segments[len(segments)-1]
	levels, err := t.walk(ctx, segments[:len(segments)-1], false)
	if err != nil || levels == nil {
		return nil, err
	}
	parent := levels[len(levels)-1]
	folder, err := t.child(ctx, parent, name, false)
	if err != nil || folder == nil {
		return nil, err
	}

	removed := []string{}
	err = t.documents(ctx, folder, core.JoinPath(segments...), func(path string, _ *stageEntry) {
		removed = append(removed, path)
	})
	if err != nil {
		return nil, err
	}
	delete(parent.children, name)
	delete(parent.childRefs, name)
	markDirty(levels)
	return removed, nil
}

// documents calls fn for every document at or below level.
func (t *StageTree) documents(ctx context.Context, level *stageLevel, prefix string, fn func(path string, entry *stageEntry)) error {
	if err := t.loadBags(ctx, level); err != nil {
		return err
	}
	for _, bag := range level.bags {
		for _, name := range slices.Sorted(maps.Keys(bag.entries)) {
			fn(prefix+"/"+name, bag.entries[name])
		}
	}
	for _, name := range t.childNames(level) {
		child, err := t.child(ctx, level, name, false)
		if err != nil {
			return err
		}
		if err := t.documents(ctx, child, prefix+"/"+name, fn); err != nil {
			return err
		}
	}
	return nil
}

func (t *StageTree) childNames(level *stageLevel) []string {
	names := make(map[string]struct{}, len(level.childRefs)+len(level.children))
	for name := range level.childRefs {
		names[name] = struct{}{}
	}
	for name := range level.children {
		names[name] = struct{}{}
	}
	return slices.Sorted(maps.Keys(names))
}

func (t *StageTree) lookup(ctx context.Context, segments []string) (*stageEntry, error) {
	if len(segments) == 0 {
		return nil, core.ErrInvalidPath
	}
	levels, err := t.walk(ctx, segments[:len(segments)-1], false)
	if err != nil || levels == nil {
		return nil, err
	}
	level := levels[len(levels)-1]
	if err := t.loadBags(ctx, level); err != nil {
		return nil, err
	}
	_, entry := t.find(level, segments[len(segments)-1])
	return entry, nil
}

// Contains reports whether a document is staged or stored at segments.
func (t *StageTree) Contains(ctx context.Context, segments []string) (bool, error) {
	entry, err := t.lookup(ctx, segments)
	return entry != nil, err
}

// GetDocument reads through the overlay.
func (t *StageTree) GetDocument(ctx context.Context, segments []string) ([]byte, bool, error) {
	entry, err := t.lookup(ctx, segments)
	if err != nil || entry == nil {
		return nil, false, err
	}
	if entry.staged {
		return entry.content, true, nil
	}
	doc, err := t.objects.GetDocument(ctx, entry.ref)
	if err != nil {
		return nil, false, err
	}
	if doc == nil {
		return nil, false, &core.CorruptObjectError{Ref: entry.ref, Kind: kindDocument.String(), Err: errMissingObject}
	}
	return doc.Content, true, nil
}

// Apply replays the changes of commit, whose snapshot is treeRef, onto
// the overlay. Added and updated documents are taken by reference.
func (t *StageTree) Apply(ctx context.Context, treeRef string, commit *core.CommitObject) ([]core.DocumentChange, error) {
	var applied []core.DocumentChange
	for _, change := range commit.Changes {
		segments, err := core.DocumentPath(change.Path)
		if err != nil {
			return nil, err
		}
		if change.Kind == core.ChangeRemoved {
			removed, err := t.RemoveDocument(ctx, segments)
			if err != nil {
				return nil, err
			}
			if removed {
				applied = append(applied, change)
			}
			continue
		}
		docRef, doc, err := t.objects.FindDocument(ctx, treeRef, segments)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			continue
		}
		if _, err := t.AddReference(ctx, segments, docRef, false); err != nil {
			return nil, err
		}
		applied = append(applied, change)
	}
	return applied, nil
}

// Commit flushes every dirty level bottom-up and returns the new root
// tree reference. Untouched folders keep their stored reference. The
// overlay is reset onto the new tree afterwards.
func (t *StageTree) Commit(ctx context.Context) (string, *Collector, error) {
	collector := &Collector{}
	ref, err := t.flush(ctx, t.root, collector)
	if err != nil {
		return "", nil, err
	}
	t.baseRef = ref
	t.root = &stageLevel{ref: ref}
	return ref, collector, nil
}

func (t *StageTree) flush(ctx context.Context, level *stageLevel, collector *Collector) (string, error) {
	if !level.dirty {
		return level.ref, nil
	}

	tree := &core.TreeObject{}
	for _, name := range t.childNames(level) {
		childRef := level.childRefs[name]
		if child, ok := level.children[name]; ok {
			var err error
			if childRef, err = t.flush(ctx, child, collector); err != nil {
				return "", err
			}
		}
		tree.Trees = append(tree.Trees, core.TreeEntry{Name: name, Ref: childRef})
	}

	if !level.bagsLoaded {
		tree.Bags = level.bagRefs
	} else {
		for _, bag := range level.bags {
			bagRef, err := t.flushBag(ctx, bag, collector)
			if err != nil {
				return "", err
			}
			tree.Bags = append(tree.Bags, bagRef)
		}
	}

	ref, err := t.objects.WriteTree(ctx, tree)
	if err != nil {
		return "", err
	}
	if ref != level.ref {
		collector.add(&collector.Trees, ref)
	}
	return ref, nil
}

func (t *StageTree) flushBag(ctx context.Context, bag *stageBag, collector *Collector) (string, error) {
	if !bag.dirty {
		return bag.ref, nil
	}
	stored := &core.DocumentBagObject{Entries: make([]core.BagEntry, 0, len(bag.entries))}
	for _, name := range slices.Sorted(maps.Keys(bag.entries)) {
		entry := bag.entries[name]
		if entry.staged {
			docRef, err := t.objects.WriteDocument(ctx, &core.DocumentObject{Content: entry.content})
			if err != nil {
				return "", err
			}
			collector.add(&collector.Documents, docRef)
			entry.ref, entry.content, entry.staged = docRef, nil, false
		}
		stored.Entries = append(stored.Entries, core.BagEntry{Name: name, Ref: entry.ref})
	}
	ref, err := t.objects.WriteDocumentBag(ctx, stored)
	if err != nil {
		return "", err
	}
	if ref != bag.ref {
		collector.add(&collector.Bags, ref)
	}
	bag.ref, bag.dirty = ref, false
	return ref, nil
}
