package tiles

import (
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const tileExt = ".png"

// Paths maps keys to artifact files under Root:
//
//	<root>/<region>/<x>_<z>.png
//
// Region ids are query-escaped with '.' also escaped, so every id maps to one
// directory and Scan can decode it back.
type Paths struct {
	Root string
}

func NewPaths(baseDir string) Paths {
	return Paths{Root: filepath.Join(baseDir, "tiles")}
}

func (p Paths) TilePath(k Key) string {
	return filepath.Join(p.Root, regionDir(k.Region), strconv.Itoa(k.X)+"_"+strconv.Itoa(k.Z)+tileExt)
}

func (p Paths) Exists(k Key) bool {
	info, err := os.Stat(p.TilePath(k))
	return err == nil && !info.IsDir()
}

// Scan lists every artifact already on disk. A missing root yields no keys.
func (p Paths) Scan() ([]Key, error) {
	var keys []Key
	err := filepath.WalkDir(p.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == p.Root {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), tileExt) {
			return nil
		}
		region, ok := regionFromDir(filepath.Base(filepath.Dir(path)))
		if !ok {
			return nil
		}
		x, z, ok := parseTileName(strings.TrimSuffix(d.Name(), tileExt))
		if !ok {
			return nil
		}
		keys = append(keys, Key{Region: region, X: x, Z: z})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func parseTileName(name string) (int, int, bool) {
	xs, zs, found := strings.Cut(name, "_")
	if !found {
		return 0, 0, false
	}
	x, err := strconv.Atoi(xs)
	if err != nil {
		return 0, 0, false
	}
	z, err := strconv.Atoi(zs)
	if err != nil {
		return 0, 0, false
	}
	return x, z, true
}

func regionDir(region string) string {
	return strings.ReplaceAll(url.QueryEscape(region), ".", "%2E")
}

func regionFromDir(dir string) (string, bool) {
	region, err := url.QueryUnescape(dir)
	if err != nil || region == "" {
		return "", false
	}
	return region, true
}
