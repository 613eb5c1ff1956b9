// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package checkpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/beamsearch/services/beam/search"
)

func sampleCheckpoint(runKey string, depth int) *search.Checkpoint {
	beam := []search.ScoredCandidate{
		{ID: "r2.b0.c1", ParentID: "r1.b0.c0", Payload: json.RawMessage(`{"tokens":["1","+","1"]}`), Score: 1.0 / 3.0, Feedback: "Result: 2"},
		{ID: "r2.b1.c0", ParentID: "r1.b0.c2", Payload: json.RawMessage(`{"tokens":["6","*","4"]}`), Score: 0.125, Feedback: "Result: 24"},
	}
	live := make([]search.Candidate, len(beam))
	for i, c := range beam {
		live[i] = c.AsCandidate()
	}
	state := search.NewState(search.Problem{
		ID:          "game24-1-1-4-6",
		Description: "use 1 1 4 6 to make 24",
		Spec:        json.RawMessage(`{"numbers":[1,1,4,6],"target":24}`),
	}).Apply(search.StateUpdate{Live: search.Replace(live...), DepthIncrement: depth})

	best := beam[0]
	return &search.Checkpoint{
		Version: search.CheckpointVersion,
		RunKey:  runKey,
		Config:  search.DefaultConfig(),
		State:   state,
		Best:    &best,
		SavedAt: time.Date(2026, 3, 14, 15, 9, 26, 535897932, time.UTC),
	}
}

// =============================================================================
// Fake S3
// =============================================================================

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("no such key")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{Message: aws.String("not found")}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(data)))}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
		}
	}
	return out, nil
}

// =============================================================================
// Conformance suite
// =============================================================================

type storeFactory func(t *testing.T, codec *Codec) Store

func backends() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T, codec *Codec) Store {
			return NewMemoryStore(codec)
		},
		"file": func(t *testing.T, codec *Codec) Store {
			s, err := NewFileStore(filepath.Join(t.TempDir(), "ckpt"), codec)
			require.NoError(t, err)
			return s
		},
		"badger": func(t *testing.T, codec *Codec) Store {
			s, err := OpenBadgerStore(BadgerConfig{InMemory: true}, codec, nil)
			require.NoError(t, err)
			return s
		},
		"s3": func(t *testing.T, codec *Codec) Store {
			s, err := NewS3Store(newFakeS3(), "bucket", "/beam/checkpoints/", codec)
			require.NoError(t, err)
			return s
		},
	}
}

func TestStores_Conformance(t *testing.T) {
	for name, factory := range backends() {
		for _, compress := range []bool{false, true} {
			t.Run(name+"/compress="+map[bool]string{false: "off", true: "on"}[compress], func(t *testing.T) {
				codec, err := NewCodec(compress, 0)
				require.NoError(t, err)
				defer codec.Close()
				store := factory(t, codec)
				defer store.Close()
				ctx := context.Background()

				t.Run("lossless round trip", func(t *testing.T) {
					want := sampleCheckpoint("run-a", 2)
					require.NoError(t, store.Save(ctx, want))
					got, err := store.Load(ctx, "run-a")
					require.NoError(t, err)
					assert.Equal(t, want, got)
				})

				t.Run("save replaces", func(t *testing.T) {
					cp := sampleCheckpoint("run-b", 1)
					require.NoError(t, store.Save(ctx, cp))
					cp = sampleCheckpoint("run-b", 3)
					cp.Reason = search.ReasonDepthExhausted
					require.NoError(t, store.Save(ctx, cp))

					got, err := store.Load(ctx, "run-b")
					require.NoError(t, err)
					assert.Equal(t, 3, got.State.Depth)
					assert.Equal(t, search.ReasonDepthExhausted, got.Reason)
				})

				t.Run("list is sorted", func(t *testing.T) {
					require.NoError(t, store.Save(ctx, sampleCheckpoint("run-0", 0)))
					keys, err := store.List(ctx)
					require.NoError(t, err)
					assert.Equal(t, []string{"run-0", "run-a", "run-b"}, keys)
				})

				t.Run("missing run", func(t *testing.T) {
					_, err := store.Load(ctx, "run-missing")
					assert.ErrorIs(t, err, ErrNotFound)
					assert.ErrorIs(t, store.Delete(ctx, "run-missing"), ErrNotFound)
				})

				t.Run("delete", func(t *testing.T) {
					require.NoError(t, store.Delete(ctx, "run-0"))
					_, err := store.Load(ctx, "run-0")
					assert.ErrorIs(t, err, ErrNotFound)
					keys, err := store.List(ctx)
					require.NoError(t, err)
					assert.NotContains(t, keys, "run-0")
				})

				t.Run("invalid run key", func(t *testing.T) {
					err := store.Save(ctx, sampleCheckpoint("../escape", 1))
					assert.ErrorIs(t, err, ErrInvalidRunKey)
				})

				t.Run("loaded checkpoint is independent", func(t *testing.T) {
					a, err := store.Load(ctx, "run-a")
					require.NoError(t, err)
					a.State.LiveCandidates[0].Payload[0] = 'X'
					b, err := store.Load(ctx, "run-a")
					require.NoError(t, err)
					assert.Equal(t, byte('{'), b.State.LiveCandidates[0].Payload[0])
				})
			})
		}
	}
}

func TestStores_WorkAsCheckpointer(t *testing.T) {
	codec, err := NewCodec(true, 3)
	require.NoError(t, err)
	defer codec.Close()

	var _ search.Checkpointer = NewMemoryStore(codec)
	var _ Store = (*FileStore)(nil)
	var _ Store = (*BadgerStore)(nil)
	var _ Store = (*S3Store)(nil)
	var _ Store = (*GCSStore)(nil)
}

// =============================================================================
// Backend specifics
// =============================================================================

func TestFileStore_IgnoresTempFiles(t *testing.T) {
	codec, err := NewCodec(false, 0)
	require.NoError(t, err)
	dir := t.TempDir()
	store, err := NewFileStore(dir, codec)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".run-x-123.tmp"), []byte("partial"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0600))
	require.NoError(t, store.Save(context.Background(), sampleCheckpoint("run-x", 1)))

	keys, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"run-x"}, keys)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 3, "save must not leave its own temp file behind")
}

func TestFileStore_CorruptFile(t *testing.T) {
	codec, err := NewCodec(false, 0)
	require.NoError(t, err)
	dir := t.TempDir()
	store, err := NewFileStore(dir, codec)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "run-c.ckpt"), []byte{formatJSON, '{'}, 0600))
	_, err = store.Load(context.Background(), "run-c")
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestBadgerStore_Persistent(t *testing.T) {
	codec, err := NewCodec(true, 0)
	require.NoError(t, err)
	cfg := BadgerConfig{Path: filepath.Join(t.TempDir(), "db"), SyncWrites: true}

	store, err := OpenBadgerStore(cfg, codec, nil)
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), sampleCheckpoint("run-p", 4)))
	require.NoError(t, store.Close())

	reopened, err := OpenBadgerStore(cfg, codec, nil)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Load(context.Background(), "run-p")
	require.NoError(t, err)
	assert.Equal(t, 4, got.State.Depth)
}

func TestBadgerStore_GCRunnerStops(t *testing.T) {
	codec, err := NewCodec(false, 0)
	require.NoError(t, err)
	cfg := BadgerConfig{Path: t.TempDir(), GCInterval: 10 * time.Millisecond, GCDiscardRatio: 0.5}

	store, err := OpenBadgerStore(cfg, codec, nil)
	require.NoError(t, err)
	require.NotNil(t, store.gc)
	time.Sleep(30 * time.Millisecond)
	assert.NoError(t, store.Close())
}

func TestBadgerStore_InvalidConfig(t *testing.T) {
	codec, err := NewCodec(false, 0)
	require.NoError(t, err)
	_, err = OpenBadgerStore(BadgerConfig{}, codec, nil)
	assert.Error(t, err)
}

func TestS3Store_KeyLayout(t *testing.T) {
	codec, err := NewCodec(false, 0)
	require.NoError(t, err)
	client := newFakeS3()
	store, err := NewS3Store(client, "bucket", "beam", codec)
	require.NoError(t, err)

	require.NoError(t, store.Save(context.Background(), sampleCheckpoint("run-k", 1)))
	client.objects["beam/nested/other.ckpt"] = []byte("x")
	client.objects["elsewhere/run-z.ckpt"] = []byte("x")

	_, ok := client.objects["beam/run-k.ckpt"]
	assert.True(t, ok)

	keys, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"run-k"}, keys)
}

func TestNewS3Store_Validation(t *testing.T) {
	codec, err := NewCodec(false, 0)
	require.NoError(t, err)
	_, err = NewS3Store(nil, "bucket", "", codec)
	assert.Error(t, err)
	_, err = NewS3Store(newFakeS3(), "", "", codec)
	assert.Error(t, err)
}

// =============================================================================
// Factory
// =============================================================================

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		s, err := Open(ctx, Config{Backend: BackendMemory}, nil)
		require.NoError(t, err)
		defer s.Close()
		assert.IsType(t, &MemoryStore{}, s.(*codecOwner).Store)
	})

	t.Run("file", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "ckpt")
		s, err := Open(ctx, Config{Backend: BackendFile, Dir: dir, Compress: true}, nil)
		require.NoError(t, err)
		defer s.Close()
		assert.Equal(t, dir, s.(*codecOwner).Store.(*FileStore).Dir())
		assert.DirExists(t, dir)
	})

	t.Run("badger", func(t *testing.T) {
		s, err := Open(ctx, Config{Backend: BackendBadger, Badger: BadgerConfig{InMemory: true}}, nil)
		require.NoError(t, err)
		assert.IsType(t, &BadgerStore{}, s.(*codecOwner).Store)

		require.NoError(t, s.Save(ctx, sampleCheckpoint("opened", 1)))
		require.NoError(t, s.Close())
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := Open(ctx, Config{Backend: "tape"}, nil)
		assert.ErrorIs(t, err, ErrUnknownBackend)
	})

	t.Run("gcs requires bucket", func(t *testing.T) {
		_, err := Open(ctx, Config{Backend: BackendGCS}, nil)
		assert.Error(t, err)
	})
}

func TestValidateRunKey(t *testing.T) {
	valid := []string{"run-1", "9f1c2d3e-0000-4000-8000-000000000000", "a", "A.b_c-d"}
	for _, k := range valid {
		assert.NoError(t, ValidateRunKey(k), k)
	}
	invalid := []string{"", ".", "..", "../x", "a/b", ".hidden", "-dash", strings.Repeat("x", 129), "sp ace"}
	for _, k := range invalid {
		assert.ErrorIs(t, ValidateRunKey(k), ErrInvalidRunKey, k)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "x"), expandPath("~/x"))
	assert.Equal(t, "/abs", expandPath("/abs"))
	assert.Equal(t, "rel/~", expandPath("rel/~"))
}
