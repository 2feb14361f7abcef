package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/sirupsen/logrus"

	"github.com/vcsforge/gitcore/modules/object"
	"github.com/vcsforge/gitcore/modules/plumbing"
	"github.com/vcsforge/gitcore/modules/plumbing/format/idxfile"
	"github.com/vcsforge/gitcore/modules/plumbing/format/objfile"
	"github.com/vcsforge/gitcore/modules/plumbing/format/packfile"
)

// Database is the object lookup façade of §4.2 (C4): lookup(D) checks
// the loose store first, then each open pack in turn, and caches parsed
// commits, trees, and tags by D (blobs are not cached, since their
// content can be arbitrarily large). Grounded on the teacher's
// backend.Database (modules/zeta/backend/odb.go, decode.go): same
// loose-then-pack read path and the same ristretto-backed metadata
// cache, adapted to git's single loose+pack object space instead of the
// teacher's separate metadata/blob storage areas.
type Database struct {
	root  string
	loose *looseStore

	mu    sync.RWMutex
	packs []*openPack

	cache *ristretto.Cache[plumbing.Hash, object.Object]
}

type openPack struct {
	path string
	file *os.File
	idx  *idxfile.Index
	pf   *packfile.Packfile
}

// Option configures a Database at construction time.
type Option func(*Database)

// WithCacheSize overrides the default parsed-object cache sizing.
func WithCacheSize(numCounters, maxCost int64) Option {
	return func(d *Database) {
		c, err := ristretto.NewCache(&ristretto.Config[plumbing.Hash, object.Object]{
			NumCounters: numCounters,
			MaxCost:     maxCost,
			BufferItems: 64,
		})
		if err == nil {
			d.cache = c
		}
	}
}

// Open constructs a Database rooted at a ".git/objects"-shaped directory:
// loose objects in the 2-level hex fanout, packs under "pack/*.{pack,idx}".
func Open(root string, opts ...Option) (*Database, error) {
	d := &Database{root: root, loose: newLooseStore(root)}
	cache, err := ristretto.NewCache(&ristretto.Config[plumbing.Hash, object.Object]{
		NumCounters: 100000,
		MaxCost:     100000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	d.cache = cache
	for _, o := range opts {
		o(d)
	}
	if err := d.loadPacks(); err != nil {
		logrus.Errorf("storage: open %s: %v", root, err)
		return nil, err
	}
	logrus.Infof("storage: opened %s, %d pack(s)", root, len(d.packs))
	return d, nil
}

func (d *Database) loadPacks() error {
	packDir := filepath.Join(d.root, "pack")
	entries, err := os.ReadDir(packDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".idx") {
			continue
		}
		base := strings.TrimSuffix(e.Name(), ".idx")
		if err := d.openPack(packDir, base); err != nil {
			return err
		}
	}
	return nil
}

func (d *Database) openPack(packDir, base string) error {
	idxPath := filepath.Join(packDir, base+".idx")
	packPath := filepath.Join(packDir, base+".pack")

	idxFile, err := os.Open(idxPath)
	if err != nil {
		return err
	}
	defer idxFile.Close()
	idx, err := idxfile.Decode(idxFile)
	if err != nil {
		logrus.Warnf("storage: corrupt pack index %s: %v", idxPath, err)
		return fmt.Errorf("storage: decode %s: %w", idxPath, err)
	}

	f, err := os.Open(packPath)
	if err != nil {
		return err
	}
	pf, err := packfile.Open(packPath, f, idx)
	if err != nil {
		f.Close()
		logrus.Warnf("storage: corrupt pack %s: %v", packPath, err)
		return fmt.Errorf("storage: open %s: %w", packPath, err)
	}
	d.packs = append(d.packs, &openPack{path: packPath, file: f, idx: idx, pf: pf})
	return nil
}

// Close releases every open pack.
func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var first error
	for _, p := range d.packs {
		if err := p.pf.Close(); err != nil {
			logrus.Errorf("storage: close %s: %v", p.path, err)
			if first == nil {
				first = err
			}
		}
		if err := p.file.Close(); err != nil && first == nil {
			first = err
		}
	}
	d.packs = nil
	d.cache.Close()
	return first
}

// read resolves oid's raw type and payload, checking the loose store
// first and then each pack, per §4.2's lookup order.
func (d *Database) read(oid plumbing.Hash) (objfile.ObjectType, []byte, error) {
	if r, err := d.loose.Open(oid); err == nil {
		defer r.Close()
		typ, size, herr := r.Header()
		if herr != nil {
			return objfile.InvalidObject, nil, herr
		}
		payload := make([]byte, size)
		if _, err := io.ReadFull(r, payload); err != nil {
			return objfile.InvalidObject, nil, err
		}
		return typ, payload, nil
	} else if !plumbing.IsNoSuchObject(err) {
		return objfile.InvalidObject, nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, p := range d.packs {
		if !p.pf.Has(oid) {
			continue
		}
		typ, data, err := p.pf.Get(oid)
		if err != nil {
			return objfile.InvalidObject, nil, err
		}
		return typ, data, nil
	}
	return objfile.InvalidObject, nil, plumbing.NoSuchObject(oid)
}

// Exists reports whether oid is present loose or in any open pack.
func (d *Database) Exists(oid plumbing.Hash) bool {
	if d.loose.Exists(oid) {
		return true
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, p := range d.packs {
		if p.pf.Has(oid) {
			return true
		}
	}
	return false
}

// WriteObject stores payload as a loose object, per §4.1.1's write path.
func (d *Database) WriteObject(typ objfile.ObjectType, payload []byte) (plumbing.Hash, error) {
	return d.loose.Write(typ, payload)
}

// object resolves and decodes oid, consulting the parsed-object cache.
// A blob is rejected here; Blob reads blobs without caching them.
func (d *Database) object(ctx context.Context, oid plumbing.Hash) (object.Object, error) {
	if v, ok := d.cache.Get(oid); ok {
		return v, nil
	}
	typ, payload, err := d.read(oid)
	if err != nil {
		return nil, err
	}
	if typ == objfile.BlobObject {
		return nil, fmt.Errorf("storage: %s is a blob, use Blob", oid)
	}
	obj, err := object.Decode(bytes.NewReader(payload), oid, typ, d)
	if err != nil {
		return nil, err
	}
	d.cache.Set(oid, obj, 1)
	d.cache.Wait()
	return obj, nil
}

// Commit implements object.Backend.
func (d *Database) Commit(ctx context.Context, oid plumbing.Hash) (*object.Commit, error) {
	obj, err := d.object(ctx, oid)
	if err != nil {
		return nil, err
	}
	c, ok := obj.(*object.Commit)
	if !ok {
		return nil, fmt.Errorf("storage: %s is not a commit", oid)
	}
	return c, nil
}

// Tree implements object.Backend.
func (d *Database) Tree(ctx context.Context, oid plumbing.Hash) (*object.Tree, error) {
	obj, err := d.object(ctx, oid)
	if err != nil {
		return nil, err
	}
	t, ok := obj.(*object.Tree)
	if !ok {
		return nil, fmt.Errorf("storage: %s is not a tree", oid)
	}
	return t, nil
}

// Tag implements object.Backend.
func (d *Database) Tag(ctx context.Context, oid plumbing.Hash) (*object.Tag, error) {
	obj, err := d.object(ctx, oid)
	if err != nil {
		return nil, err
	}
	g, ok := obj.(*object.Tag)
	if !ok {
		return nil, fmt.Errorf("storage: %s is not a tag", oid)
	}
	return g, nil
}

// Blob implements object.Backend. Blobs are never cached: per §4.2,
// only commits, trees, and tags go through the parsed-object cache. The
// content is re-read from the loose/pack store on every Reader() call
// rather than held resident, since blobs are not size-bounded.
func (d *Database) Blob(ctx context.Context, oid plumbing.Hash) (*object.Blob, error) {
	typ, payload, err := d.read(oid)
	if err != nil {
		return nil, err
	}
	if typ != objfile.BlobObject {
		return nil, fmt.Errorf("storage: %s is not a blob", oid)
	}
	return object.NewBlob(oid, int64(len(payload)), func() (io.ReadCloser, error) {
		_, data, err := d.read(oid)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(bytes.NewReader(data)), nil
	}), nil
}
