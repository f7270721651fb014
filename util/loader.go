// Package util - Helpers for loading image files from disk.
package util

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// ImageFile represents an image file.
type ImageFile struct {
	// Path is the path to the image file.
	Path string
	// Data is the raw bytes of the image file.
	Data []byte
	// Label is the name of the directory the file was found in, empty for flat loads.
	Label string
}

// imageExtensions are the file extensions treated as images.
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
	".gif":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

// IsImageFile reports whether name has an image extension.
func IsImageFile(name string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(name))]
}

// LoadDirectoryImageFiles reads all image files directly inside a directory.
//
// Arguments:
// - dir: Directory path containing image files.
//
// Returns:
// - []ImageFile: The files sorted by name.
// - error: Error if the directory or a file cannot be read.
func LoadDirectoryImageFiles(dir string) ([]ImageFile, error) {
	return loadDir(dir, "")
}

// LoadLabelledImageFiles reads a dataset laid out as one sub-directory per class, e.g.
// Testing/glioma/*.jpg. Directories not named in labels are ignored; a nil labels loads
// every sub-directory.
//
// Arguments:
// - root: The dataset root.
// - labels: The class names to load.
//
// Returns:
// - []ImageFile: The files with Label set, sorted by label and then name.
// - error: Error if loading fails or no images are found.
func LoadLabelledImageFiles(root string, labels []string) ([]ImageFile, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(labels))
	for _, l := range labels {
		wanted[l] = true
	}

	var files []ImageFile
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if len(wanted) > 0 && !wanted[entry.Name()] {
			continue
		}
		loaded, err := loadDir(filepath.Join(root, entry.Name()), entry.Name())
		if err != nil {
			return nil, err
		}
		files = append(files, loaded...)
	}
	if len(files) == 0 {
		return nil, errors.Errorf("no labelled images found under %s", root)
	}

	sort.SliceStable(files, func(i, j int) bool {
		if files[i].Label != files[j].Label {
			return files[i].Label < files[j].Label
		}
		return files[i].Path < files[j].Path
	})
	return files, nil
}

func loadDir(dir, label string) ([]ImageFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var images []ImageFile
	for _, entry := range entries {
		if entry.IsDir() || !IsImageFile(entry.Name()) {
			continue
		}
		imgPath := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(imgPath)
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s", imgPath)
		}
		images = append(images, ImageFile{Path: imgPath, Data: data, Label: label})
	}

	sort.Slice(images, func(i, j int) bool {
		return images[i].Path < images[j].Path
	})
	return images, nil
}
