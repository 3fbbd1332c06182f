package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// SyncFile describes one stored sync payload.
type SyncFile struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// SyncEntry summarizes one (product, license) directory that holds files.
type SyncEntry struct {
	ProductID string `json:"product_id"`
	LicenseID string `json:"license_id"`
	FileCount int    `json:"file_count"`
}

// SyncStore persists opaque device-state uploads. Files live under
// root/productID/licenseID/hardwareID and are named by arrival unix
// timestamp, so writes from different devices never contend.
type SyncStore interface {
	SaveSync(productID, licenseID, hardwareID string, data json.RawMessage, now time.Time) (string, error)
	ListSyncEntries() ([]SyncEntry, error)
	ListSyncFiles(productID, licenseID string) ([]SyncFile, error)
	OpenSyncFile(productID, licenseID, hardwareID, name string) (string, error)
	DeleteSyncFile(productID, licenseID, hardwareID, name string) error
}

type FileSyncStore struct {
	Root string
}

func NewFileSyncStore(root string) *FileSyncStore {
	return &FileSyncStore{Root: root}
}

// SaveSync writes the payload pretty-printed, write-once. Two uploads from
// the same device within the same second get a counter suffix instead of
// clobbering each other.
func (s *FileSyncStore) SaveSync(productID, licenseID, hardwareID string, data json.RawMessage, now time.Time) (string, error) {
	dir := filepath.Join(s.Root, sanitize(productID), sanitize(licenseID), sanitize(hardwareID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create sync directory: %w", err)
	}

	var pretty any
	if err := json.Unmarshal(data, &pretty); err != nil {
		return "", fmt.Errorf("invalid sync payload: %w", err)
	}
	contents, err := json.MarshalIndent(pretty, "", "    ")
	if err != nil {
		return "", fmt.Errorf("failed to format sync payload: %w", err)
	}

	base := fmt.Sprintf("%d", now.Unix())
	path := filepath.Join(dir, base+".json")
	for n := 1; ; n++ {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			defer f.Close()
			if _, err := f.Write(contents); err != nil {
				return "", fmt.Errorf("failed to write sync file: %w", err)
			}
			return path, nil
		}
		if !os.IsExist(err) {
			return "", fmt.Errorf("failed to create sync file: %w", err)
		}
		path = filepath.Join(dir, fmt.Sprintf("%s-%d.json", base, n))
	}
}

func (s *FileSyncStore) ListSyncEntries() ([]SyncEntry, error) {
	var entries []SyncEntry

	products, err := os.ReadDir(s.Root)
	if os.IsNotExist(err) {
		return entries, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sync root: %w", err)
	}

	for _, product := range products {
		if !product.IsDir() {
			continue
		}
		licenses, err := os.ReadDir(filepath.Join(s.Root, product.Name()))
		if err != nil {
			continue
		}
		for _, license := range licenses {
			if !license.IsDir() {
				continue
			}
			files, err := s.ListSyncFiles(product.Name(), license.Name())
			if err != nil || len(files) == 0 {
				continue
			}
			entries = append(entries, SyncEntry{
				ProductID: product.Name(),
				LicenseID: license.Name(),
				FileCount: len(files),
			})
		}
	}

	return entries, nil
}

// ListSyncFiles returns the files of every device under one license, names
// prefixed with the hardware directory, newest first.
func (s *FileSyncStore) ListSyncFiles(productID, licenseID string) ([]SyncFile, error) {
	dir := filepath.Join(s.Root, sanitize(productID), sanitize(licenseID))
	devices, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: sync files", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read sync directory: %w", err)
	}

	var files []SyncFile
	for _, device := range devices {
		if !device.IsDir() {
			continue
		}
		deviceFiles, err := os.ReadDir(filepath.Join(dir, device.Name()))
		if err != nil {
			continue
		}
		for _, f := range deviceFiles {
			if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
				continue
			}
			info, err := f.Info()
			if err != nil {
				continue
			}
			files = append(files, SyncFile{
				Name: filepath.Join(device.Name(), f.Name()),
				Size: info.Size(),
			})
		}
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name > files[j].Name })
	return files, nil
}

func (s *FileSyncStore) OpenSyncFile(productID, licenseID, hardwareID, name string) (string, error) {
	path := filepath.Join(s.Root, sanitize(productID), sanitize(licenseID), sanitize(hardwareID), sanitize(name))
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: sync file", ErrNotFound)
		}
		return "", fmt.Errorf("failed to stat sync file: %w", err)
	}
	return path, nil
}

func (s *FileSyncStore) DeleteSyncFile(productID, licenseID, hardwareID, name string) error {
	path, err := s.OpenSyncFile(productID, licenseID, hardwareID, name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to delete sync file: %w", err)
	}
	return nil
}

// sanitize strips path separators so identifiers coming off the wire can
// never escape the sync root.
func sanitize(segment string) string {
	return filepath.Base(filepath.Clean(segment))
}
