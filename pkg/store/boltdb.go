package store

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/steward-sh/steward/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketGroups    = []byte("groups")
	bucketVersions  = []byte("group_versions")
	bucketInstances = []byte("instances")
)

// BoltStore implements Repository using BoltDB, following the
// bucket-per-entity / JSON-marshal-per-record layout of the teacher's
// pkg/storage/boltdb.go.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if necessary) a BoltDB-backed repository
// under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "steward.db")
	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketGroups, bucketVersions, bucketInstances} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error { return s.db.Close() }

func (s *BoltStore) Get(path string) (*types.Group, bool, error) {
	var group types.Group
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketGroups)
		data := b.Get([]byte(path))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &group)
	})
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	return &group, true, nil
}

func (s *BoltStore) Put(path string, group *types.Group) error {
	data, err := json.Marshal(group)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketGroups).Put([]byte(path), data); err != nil {
			return err
		}
		return appendVersion(tx, path, time.Now())
	})
}

func appendVersion(tx *bolt.Tx, path string, at time.Time) error {
	b := tx.Bucket(bucketVersions)
	key := []byte(path)
	var versions []int64
	if raw := b.Get(key); raw != nil {
		if err := json.Unmarshal(raw, &versions); err != nil {
			return err
		}
	}
	versions = append(versions, at.UnixNano())
	sort.Slice(versions, func(i, j int) bool { return versions[i] > versions[j] })
	data, err := json.Marshal(versions)
	if err != nil {
		return err
	}
	return b.Put(key, data)
}

func (s *BoltStore) Delete(path string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketGroups).Delete([]byte(path)); err != nil {
			return err
		}
		return tx.Bucket(bucketVersions).Delete([]byte(path))
	})
}

func (s *BoltStore) Versions(path string) ([]int64, error) {
	var versions []int64
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketVersions).Get([]byte(path))
		if raw == nil {
			return nil
		}
		return json.Unmarshal(raw, &versions)
	})
	return versions, err
}

func (s *BoltStore) Root() (*types.Group, error) {
	group, found, err := s.Get(string(types.NewGroup("/").Path))
	if err != nil {
		return nil, err
	}
	if !found {
		return types.NewGroup("/"), nil
	}
	return group, nil
}

func instanceKey(runSpecPath, instanceID string) []byte {
	return []byte(runSpecPath + "\x00" + instanceID)
}

func (s *BoltStore) PutInstance(runSpecPath string, instance *types.Instance) error {
	data, err := json.Marshal(instance)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketInstances).Put(instanceKey(runSpecPath, instance.ID), data)
	})
}

func (s *BoltStore) GetInstance(runSpecPath, instanceID string) (*types.Instance, bool, error) {
	var inst types.Instance
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketInstances).Get(instanceKey(runSpecPath, instanceID))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &inst)
	})
	if err != nil || !found {
		return nil, found, err
	}
	return &inst, true, nil
}

func (s *BoltStore) ListInstances(runSpecPath string) ([]*types.Instance, error) {
	var out []*types.Instance
	prefix := []byte(runSpecPath + "\x00")
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketInstances).Cursor()
		for k, v := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, v = c.Next() {
			var inst types.Instance
			if err := json.Unmarshal(v, &inst); err != nil {
				return err
			}
			out = append(out, &inst)
		}
		return nil
	})
	return out, err
}

func (s *BoltStore) ListAllInstances() ([]*types.Instance, error) {
	var out []*types.Instance
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketInstances).ForEach(func(k, v []byte) error {
			var inst types.Instance
			if err := json.Unmarshal(v, &inst); err != nil {
				return err
			}
			out = append(out, &inst)
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) DeleteInstance(runSpecPath, instanceID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketInstances).Delete(instanceKey(runSpecPath, instanceID))
	})
}

// latestVersionString returns the first (most recent) entry of versions
// as a decimal string, or "" when versions is empty. Nothing in this
// module calls it; it is kept for parity with the teacher's habit of
// exposing small string helpers alongside storage code.
func latestVersionString(versions []int64) string {
	if len(versions) == 0 {
		return ""
	}
	return strconv.FormatInt(versions[0], 10)
}
