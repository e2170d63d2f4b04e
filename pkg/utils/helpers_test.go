package utils

import (
	"os"
	"path"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInSlice(t *testing.T) {
	if !InSlice("b", []string{"a", "b", "c"}) {
		t.Error("expected 'b' to be found")
	}
	if InSlice("d", []string{"a", "b", "c"}) {
		t.Error("did not expect 'd' to be found")
	}
	if InSlice("a", nil) {
		t.Error("did not expect a match in a nil slice")
	}
}

func TestContainsKeyword(t *testing.T) {
	require.True(t, ContainsKeyword("Basketball", []string{"ball"}))
	require.True(t, ContainsKeyword("BASKET_RIM", []string{"ball", "basket"}))
	require.False(t, ContainsKeyword("player", []string{"ball", "basket"}))
	require.False(t, ContainsKeyword("", []string{"ball"}))
}

func TestImageFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.jpg", "a.PNG", "c.txt", "d.mp4"} {
		require.NoError(t, os.WriteFile(path.Join(dir, name), []byte("x"), 0644))
	}
	require.NoError(t, os.Mkdir(path.Join(dir, "sub"), 0766))
	require.NoError(t, os.WriteFile(path.Join(dir, "sub", "e.jpg"), []byte("x"), 0644))

	images, err := ImageFiles(dir)
	require.NoError(t, err)
	require.Len(t, images, 2)
	require.Equal(t, "a.PNG", filepath.Base(images[0]))
	require.Equal(t, "b.jpg", filepath.Base(images[1]))

	recursive, err := ImageFilesRecursive(dir)
	require.NoError(t, err)
	require.Len(t, recursive, 3)
}

func TestVideoFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(path.Join(dir, "clips"), 0766))
	require.NoError(t, os.WriteFile(path.Join(dir, "a.mp4"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(path.Join(dir, "clips", "b.AVI"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(path.Join(dir, "notes.txt"), []byte("x"), 0644))

	flat, err := VideoFiles(dir, false)
	require.NoError(t, err)
	require.Len(t, flat, 1)

	recursive, err := VideoFiles(dir, true)
	require.NoError(t, err)
	require.Len(t, recursive, 2)
}

func TestListSubdirs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(path.Join(dir, "beta"), 0766))
	require.NoError(t, os.Mkdir(path.Join(dir, "alpha"), 0766))
	require.NoError(t, os.WriteFile(path.Join(dir, "file.txt"), []byte("x"), 0644))

	subdirs, err := ListSubdirs(dir)
	require.NoError(t, err)
	require.Equal(t, []string{"alpha", "beta"}, subdirs)
}

func TestSafeMoveAvoidsCollisions(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := path.Join(t.TempDir(), "out")

	first := path.Join(srcDir, "frame.jpg")
	require.NoError(t, os.WriteFile(first, []byte("one"), 0644))

	moved, err := SafeMove(first, dstDir)
	require.NoError(t, err)
	require.Equal(t, "frame.jpg", filepath.Base(moved))

	second := path.Join(srcDir, "frame.jpg")
	require.NoError(t, os.WriteFile(second, []byte("two"), 0644))

	moved, err = SafeMove(second, dstDir)
	require.NoError(t, err)
	require.Equal(t, "frame_1.jpg", filepath.Base(moved))

	//original file is gone, both destinations hold the right contents
	_, err = os.Stat(second)
	require.True(t, os.IsNotExist(err))

	data, err := os.ReadFile(path.Join(dstDir, "frame_1.jpg"))
	require.NoError(t, err)
	require.Equal(t, "two", string(data))
}

func TestCopyFile(t *testing.T) {
	srcDir := t.TempDir()
	src := path.Join(srcDir, "label.txt")
	require.NoError(t, os.WriteFile(src, []byte("0 0.5 0.5 0.1 0.1\n"), 0644))

	dst := path.Join(srcDir, "nested", "deep", "label.txt")
	require.NoError(t, CopyFile(src, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, "0 0.5 0.5 0.1 0.1\n", string(data))

	//source is untouched
	_, err = os.Stat(src)
	require.NoError(t, err)
}
