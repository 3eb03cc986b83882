package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mindfulpath/apngdis/animation"
	"github.com/mindfulpath/apngdis/internal/apngtest"
	"github.com/mindfulpath/apngdis/internal/container"
)

// writeAPNG writes a small animation with the given frame delays (in
// hundredths) to dir and returns its path.
func writeAPNG(t *testing.T, dir string, delays ...uint16) string {
	t.Helper()
	info := container.ImageInfo{Width: 4, Height: 4, BitDepth: 8, ColorType: container.ColorTrueColor, Channels: 3}
	b := &apngtest.Builder{Info: info}
	for i, d := range delays {
		b.Frames = append(b.Frames, apngtest.Frame{
			Rows:    apngtest.Rows(info, int64(i)),
			Control: animation.FrameControl{DelayNum: d, DelayDen: 100},
		})
	}
	data, err := b.Build()
	require.NoError(t, err)
	path := filepath.Join(dir, "anim.png")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestRun_NoArgs(t *testing.T) {
	var stderr bytes.Buffer
	require.Equal(t, 1, run(nil, &stderr))
	require.Contains(t, stderr.String(), "Usage:")
}

func TestRun_Help(t *testing.T) {
	var stderr bytes.Buffer
	require.Equal(t, 0, run([]string{"-h"}, &stderr))
	require.Contains(t, stderr.String(), "-workers")
}

func TestRun_DefaultPrefix(t *testing.T) {
	t.Setenv("APNGDIS_PREFIX", "")
	dir := t.TempDir()
	path := writeAPNG(t, dir, 10, 20, 10)

	var stderr bytes.Buffer
	require.Equal(t, 0, run([]string{"-workers", "1", path}, &stderr), stderr.String())
	require.Equal(t, []string{
		"anim.png",
		"apngframe01.png", "apngframe01.txt",
		"apngframe02.png", "apngframe02.txt",
		"apngframe03.png", "apngframe03.txt",
	}, listDir(t, dir))

	txt, err := os.ReadFile(filepath.Join(dir, "apngframe02.txt"))
	require.NoError(t, err)
	require.Equal(t, "delay=20/100", string(txt))
	require.Contains(t, stderr.String(), "all done")
}

func TestRun_PrefixAndOutputDir(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "frames")
	path := writeAPNG(t, dir, 5)

	var stderr bytes.Buffer
	require.Equal(t, 0, run([]string{"-o", out, "-level", "9", path, "f_"}, &stderr), stderr.String())
	require.Equal(t, []string{"f_01.png", "f_01.txt"}, listDir(t, out))
}

func TestRun_NotAPNG(t *testing.T) {
	dir := t.TempDir()
	info := container.ImageInfo{Width: 2, Height: 2, BitDepth: 8, ColorType: container.ColorGrayscale, Channels: 1}
	plain, err := apngtest.Plain(info, apngtest.Rows(info, 1))
	require.NoError(t, err)
	path := filepath.Join(dir, "plain.png")
	require.NoError(t, os.WriteFile(path, plain, 0o644))

	var stderr bytes.Buffer
	require.Equal(t, 1, run([]string{path}, &stderr))
	require.Contains(t, stderr.String(), "not an APNG")
	require.Equal(t, []string{"plain.png"}, listDir(t, dir))
}

func TestRun_MissingInput(t *testing.T) {
	var stderr bytes.Buffer
	require.Equal(t, 1, run([]string{filepath.Join(t.TempDir(), "nope.png")}, &stderr))
	require.True(t, strings.Contains(stderr.String(), "apngdis:"), stderr.String())
}

func TestRun_BadFlag(t *testing.T) {
	var stderr bytes.Buffer
	require.Equal(t, 1, run([]string{"-bogus", "x.png"}, &stderr))
}
