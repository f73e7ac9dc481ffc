package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	gmerrors "github.com/ehallam/gmassist/internal/platform/errors"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "library.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open library store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestAddAndListImages(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	folder, err := store.AddFolder(ctx, "Maps")
	if err != nil {
		t.Fatalf("add folder: %v", err)
	}

	first, err := store.AddImage(ctx, folder.ID, "Ruined Keep", "maps/ruined_keep.png")
	if err != nil {
		t.Fatalf("add image: %v", err)
	}
	if _, err := store.AddImage(ctx, folder.ID, "", "maps/cellar.png"); err != nil {
		t.Fatalf("add second image: %v", err)
	}

	images, err := store.ListImages(ctx, folder.ID)
	if err != nil {
		t.Fatalf("list images: %v", err)
	}
	if len(images) != 2 {
		t.Fatalf("expected 2 images, got %d", len(images))
	}

	loaded, err := store.GetImage(ctx, first.ID)
	if err != nil {
		t.Fatalf("get image: %v", err)
	}
	if loaded.Path != "maps/ruined_keep.png" || loaded.Name != "Ruined Keep" {
		t.Fatalf("unexpected image record: %+v", loaded)
	}

	byPath, err := store.GetImageByPath(ctx, "maps/cellar.png")
	if err != nil {
		t.Fatalf("get image by path: %v", err)
	}
	if byPath.Name != "cellar.png" {
		t.Fatalf("expected name derived from path, got %q", byPath.Name)
	}
}

func TestGetImageNotFound(t *testing.T) {
	store := openTestStore(t)

	_, err := store.GetImage(context.Background(), 999)
	if gmerrors.CodeOf(err) != gmerrors.CodeNotFound {
		t.Fatalf("expected not found code, got %v", err)
	}
}

func TestAddImageRequiresPath(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	folder, err := store.AddFolder(ctx, "Maps")
	if err != nil {
		t.Fatalf("add folder: %v", err)
	}
	_, err = store.AddImage(ctx, folder.ID, "nameless", "   ")
	if gmerrors.CodeOf(err) != gmerrors.CodeLibraryImagePathEmpty {
		t.Fatalf("expected empty path code, got %v", err)
	}
}

func TestTagging(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	folder, err := store.AddFolder(ctx, "Maps")
	if err != nil {
		t.Fatalf("add folder: %v", err)
	}
	keep, err := store.AddImage(ctx, folder.ID, "Keep", "maps/keep.png")
	if err != nil {
		t.Fatalf("add image: %v", err)
	}
	cellar, err := store.AddImage(ctx, folder.ID, "Cellar", "maps/cellar.png")
	if err != nil {
		t.Fatalf("add image: %v", err)
	}

	dungeon, err := store.AddTag(ctx, "dungeon")
	if err != nil {
		t.Fatalf("add tag: %v", err)
	}
	again, err := store.AddTag(ctx, "dungeon")
	if err != nil {
		t.Fatalf("re-add tag: %v", err)
	}
	if again.ID != dungeon.ID {
		t.Fatalf("expected idempotent tag insert, got ids %d and %d", dungeon.ID, again.ID)
	}

	if err := store.TagImage(ctx, cellar.ID, dungeon.ID); err != nil {
		t.Fatalf("tag image: %v", err)
	}
	if err := store.TagImage(ctx, cellar.ID, dungeon.ID); err != nil {
		t.Fatalf("repeat tag image: %v", err)
	}

	tagged, err := store.ImagesByTag(ctx, dungeon.ID)
	if err != nil {
		t.Fatalf("images by tag: %v", err)
	}
	if len(tagged) != 1 || tagged[0].ID != cellar.ID {
		t.Fatalf("expected only the cellar tagged, got %+v", tagged)
	}
	if tagged[0].ID == keep.ID {
		t.Fatal("untagged image leaked into tag query")
	}

	tags, err := store.ListTags(ctx)
	if err != nil {
		t.Fatalf("list tags: %v", err)
	}
	if len(tags) != 1 || tags[0].Name != "dungeon" {
		t.Fatalf("unexpected tags: %+v", tags)
	}
}

func TestAddTagRequiresName(t *testing.T) {
	store := openTestStore(t)

	_, err := store.AddTag(context.Background(), " ")
	if !errors.Is(err, gmerrors.New(gmerrors.CodeLibraryTagNameEmpty, "")) {
		t.Fatalf("expected empty tag name code, got %v", err)
	}
}
