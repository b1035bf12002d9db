package fatfs

import "strings"

// splitPath breaks a "/"-separated path into non-empty components.
func splitPath(path string) []string {
	parts := strings.Split(path, "/")
	out := parts[:0]
	for _, p := range parts {
		if p != "" && p != "." {
			out = append(out, p)
		}
	}
	return out
}

// resolveParent walks path down to its final component's containing
// directory, returning that directory's cluster (and whether it is the
// volume root) plus the leaf component name. An empty path or a path
// that is entirely "/" resolves to the root itself with an empty leaf.
func (v *Volume) resolveParent(path string) (cluster uint32, isRoot bool, leaf string, res Result) {
	parts := splitPath(path)
	cluster, isRoot = v.rootCluster, v.geom.fsType == FSFAT32
	if v.geom.fsType != FSFAT32 {
		isRoot = true
	}
	if len(parts) == 0 {
		return cluster, isRoot, "", FROK
	}
	for _, comp := range parts[:len(parts)-1] {
		d, _, res := v.lookup(cluster, isRoot, comp)
		if res != FROK {
			return 0, false, "", FRNoPath
		}
		if !d.isDir() {
			return 0, false, "", FRNoPath
		}
		cluster, isRoot = d.firstClust, false
	}
	return cluster, isRoot, parts[len(parts)-1], FROK
}

// resolve walks the full path to its terminal directory entry.
func (v *Volume) resolve(path string) (dirent, direntLoc, Result) {
	parentClust, parentIsRoot, leaf, res := v.resolveParent(path)
	if res != FROK {
		return dirent{}, direntLoc{}, res
	}
	if leaf == "" {
		// The root directory itself: synthesize a directory dirent.
		return dirent{attr: attrDirByte, firstClust: parentClust}, direntLoc{}, FROK
	}
	return v.lookup(parentClust, parentIsRoot, leaf)
}

// Stat resolves path to a [DirEntry], or FRNoFile/FRNoPath if any
// component along the way is missing.
func (v *Volume) Stat(path string) (DirEntry, Result) {
	d, _, res := v.resolve(path)
	if res != FROK {
		return DirEntry{}, res
	}
	return DirEntry{
		Name:    from83(d.name),
		IsDir:   d.isDir(),
		Size:    d.size,
		ModTime: decodeFATTime(d.writeDate, d.writeTime),
	}, FROK
}

// dirCluster resolves path to the cluster of the directory it names
// (not its parent), used by the path-based Mkdir/Rmdir/ReadDir wrappers
// below.
func (v *Volume) dirCluster(path string) (cluster uint32, isRoot bool, res Result) {
	d, _, res := v.resolve(path)
	if res != FROK {
		return 0, false, res
	}
	if !d.isDir() {
		return 0, false, FRNoPath
	}
	if path == "" || len(splitPath(path)) == 0 {
		return d.firstClust, v.geom.fsType != FSFAT32 || d.firstClust == v.rootCluster, FROK
	}
	return d.firstClust, false, FROK
}

// MkdirPath creates a directory at path.
func (v *Volume) MkdirPath(path string) Result {
	parentClust, parentIsRoot, leaf, res := v.resolveParent(path)
	if res != FROK {
		return res
	}
	if leaf == "" {
		return FRInvalidName
	}
	return v.Mkdir(parentClust, parentIsRoot, leaf)
}

// RmdirPath removes the (empty) directory at path.
func (v *Volume) RmdirPath(path string) Result {
	parentClust, parentIsRoot, leaf, res := v.resolveParent(path)
	if res != FROK {
		return res
	}
	if leaf == "" {
		return FRInvalidName
	}
	return v.Rmdir(parentClust, parentIsRoot, leaf)
}

// UnlinkPath removes the file at path.
func (v *Volume) UnlinkPath(path string) Result {
	parentClust, parentIsRoot, leaf, res := v.resolveParent(path)
	if res != FROK {
		return res
	}
	if leaf == "" {
		return FRInvalidName
	}
	return v.Unlink(parentClust, parentIsRoot, leaf)
}

// ReadDirPath lists the members of the directory at path (the volume
// root for path == "").
func (v *Volume) ReadDirPath(path string) ([]DirEntry, Result) {
	cluster, isRoot, res := v.dirCluster(path)
	if res != FROK {
		return nil, res
	}
	return v.ReadDir(cluster, isRoot)
}

// RenamePath renames/moves the file or directory at oldPath to newPath
// within the same volume. FAT offers no atomic rename primitive this
// driver implements directly, so RenamePath recreates the directory
// entry at the new location and erases the old one, preserving the
// entry's first cluster and size — content is never copied.
func (v *Volume) RenamePath(oldPath, newPath string) Result {
	oldParent, oldIsRoot, oldLeaf, res := v.resolveParent(oldPath)
	if res != FROK {
		return res
	}
	oldEntry, oldLoc, res := v.lookup(oldParent, oldIsRoot, oldLeaf)
	if res != FROK {
		return res
	}

	newParent, newIsRoot, newLeaf, res := v.resolveParent(newPath)
	if res != FROK {
		return res
	}
	if _, _, res := v.lookup(newParent, newIsRoot, newLeaf); res == FROK {
		return FRExist
	}

	newShort, res := to83(newLeaf)
	if res != FROK {
		return res
	}
	newLoc, res := v.allocSlot(newParent, newIsRoot)
	if res != FROK {
		return res
	}
	oldEntry.name = newShort
	if res := v.writeSlot(newLoc, oldEntry); res != FROK {
		return res
	}
	return v.eraseEntry(oldLoc)
}
