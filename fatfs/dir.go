package fatfs

import "time"

// direntLoc pins a dirent to its on-disk slot so it can be rewritten or
// erased in place without a second lookup.
type direntLoc struct {
	sector uint32
	offset int // byte offset within the sector
}

// DirEntry is the public, decoded view of one directory member, as
// returned by [Volume.ReadDir].
type DirEntry struct {
	Name    string
	IsDir   bool
	Size    uint32
	ModTime time.Time
}

// dirSectors returns every sector backing a directory, in order. The
// root directory of a FAT12/16 volume is a fixed run of sectors; every
// other directory (including the FAT32 root) is an ordinary cluster
// chain.
func (v *Volume) dirSectors(dirCluster uint32, isRoot bool) ([]uint32, Result) {
	if isRoot && v.geom.fsType != FSFAT32 {
		sectors := make([]uint32, v.rootDirSectors)
		for i := range sectors {
			sectors[i] = v.rootDirSector + uint32(i)
		}
		return sectors, FROK
	}
	chain, res := v.clusterChain(dirCluster)
	if res != FROK {
		return nil, res
	}
	spc := uint32(v.geom.sectorsPerCluster)
	sectors := make([]uint32, 0, uint32(len(chain))*spc)
	for _, c := range chain {
		start := v.clusterToSector(c)
		for i := uint32(0); i < spc; i++ {
			sectors = append(sectors, start+i)
		}
	}
	return sectors, FROK
}

// forEachSlot walks every 32-byte directory-entry slot in dirCluster,
// invoking fn with the decoded entry and its location. fn returns true
// to stop the walk early.
func (v *Volume) forEachSlot(dirCluster uint32, isRoot bool, fn func(dirent, direntLoc) bool) Result {
	sectors, res := v.dirSectors(dirCluster, isRoot)
	if res != FROK {
		return res
	}
	ss := int(v.geom.bytesPerSector)
	buf := make([]byte, ss)
	for _, sec := range sectors {
		if res := v.readSectors(sec, 1, buf); res != FROK {
			return res
		}
		for off := 0; off+dirEntrySize <= ss; off += dirEntrySize {
			d := decodeDirent(buf[off : off+dirEntrySize])
			if fn(d, direntLoc{sector: sec, offset: off}) {
				return FROK
			}
		}
	}
	return FROK
}

// lookup finds a live entry named name (case-insensitive 8.3 match)
// directly within dirCluster. Returns FRNoFile if absent.
func (v *Volume) lookup(dirCluster uint32, isRoot bool, name string) (dirent, direntLoc, Result) {
	short, res := to83(name)
	if res != FROK {
		return dirent{}, direntLoc{}, res
	}
	var found dirent
	var loc direntLoc
	hit := false
	res = v.forEachSlot(dirCluster, isRoot, func(d dirent, l direntLoc) bool {
		if d.live() && d.name == short {
			found, loc, hit = d, l, true
			return true
		}
		return false
	})
	if res != FROK {
		return dirent{}, direntLoc{}, res
	}
	if !hit {
		return dirent{}, direntLoc{}, FRNoFile
	}
	return found, loc, FROK
}

// ReadDir lists the live members of the directory at dirCluster.
func (v *Volume) ReadDir(dirCluster uint32, isRoot bool) ([]DirEntry, Result) {
	var entries []DirEntry
	res := v.forEachSlot(dirCluster, isRoot, func(d dirent, _ direntLoc) bool {
		if d.live() {
			entries = append(entries, DirEntry{
				Name:    from83(d.name),
				IsDir:   d.isDir(),
				Size:    d.size,
				ModTime: decodeFATTime(d.writeDate, d.writeTime),
			})
		}
		return false
	})
	return entries, res
}

// writeSlot rewrites the 32-byte entry at loc.
func (v *Volume) writeSlot(loc direntLoc, d dirent) Result {
	ss := int(v.geom.bytesPerSector)
	buf := make([]byte, ss)
	if res := v.readSectors(loc.sector, 1, buf); res != FROK {
		return res
	}
	copy(buf[loc.offset:loc.offset+dirEntrySize], encodeDirent(d))
	return v.writeSectors(loc.sector, 1, buf)
}

// allocSlot finds a free or deleted slot in dirCluster to host a new
// entry, extending the directory's cluster chain if it is completely
// full (the FAT12/16 fixed root directory cannot be extended and
// returns FRDenied when exhausted, matching classic FatFs behavior).
func (v *Volume) allocSlot(dirCluster uint32, isRoot bool) (direntLoc, Result) {
	var loc direntLoc
	hit := false
	res := v.forEachSlot(dirCluster, isRoot, func(d dirent, l direntLoc) bool {
		if d.freeSlot || d.deletedSlot {
			loc, hit = l, true
			return true
		}
		return false
	})
	if res != FROK {
		return direntLoc{}, res
	}
	if hit {
		return loc, FROK
	}
	if isRoot && v.geom.fsType != FSFAT32 {
		return direntLoc{}, FRDenied
	}
	if _, res := v.appendCluster(dirCluster); res != FROK {
		return direntLoc{}, res
	}
	return v.allocSlot(dirCluster, isRoot)
}

// createEntry allocates a slot in dirCluster and writes a new directory
// entry named name with the given attributes. Returns FRExist if a live
// entry with that name is already present.
func (v *Volume) createEntry(dirCluster uint32, isRoot bool, name string, attr uint8) (dirent, direntLoc, Result) {
	if _, _, res := v.lookup(dirCluster, isRoot, name); res == FROK {
		return dirent{}, direntLoc{}, FRExist
	} else if res != FRNoFile {
		return dirent{}, direntLoc{}, res
	}
	short, res := to83(name)
	if res != FROK {
		return dirent{}, direntLoc{}, res
	}
	loc, res := v.allocSlot(dirCluster, isRoot)
	if res != FROK {
		return dirent{}, direntLoc{}, res
	}
	date, clock := encodeFATTime(time.Now().UTC())
	d := dirent{name: short, attr: attr, writeDate: date, writeTime: clock}
	if res := v.writeSlot(loc, d); res != FROK {
		return dirent{}, direntLoc{}, res
	}
	return d, loc, FROK
}

// eraseEntry marks the slot at loc deleted (0xE5 marker, classic FatFs
// unlink semantics — entries are tombstoned, not zeroed).
func (v *Volume) eraseEntry(loc direntLoc) Result {
	ss := int(v.geom.bytesPerSector)
	buf := make([]byte, ss)
	if res := v.readSectors(loc.sector, 1, buf); res != FROK {
		return res
	}
	buf[loc.offset] = 0xE5
	return v.writeSectors(loc.sector, 1, buf)
}

// Mkdir creates a subdirectory named name inside dirCluster, pre-
// populating its "." and ".." entries.
func (v *Volume) Mkdir(dirCluster uint32, isRoot bool, name string) Result {
	cluster, res := v.allocCluster()
	if res != FROK {
		return res
	}
	d, _, res := v.createEntry(dirCluster, isRoot, name, attrDirByte)
	if res != FROK {
		v.freeChain(cluster)
		return res
	}
	d.firstClust = cluster
	// re-find the slot we just wrote, now that we know the cluster.
	_, loc, res := v.lookup(dirCluster, isRoot, name)
	if res != FROK {
		return res
	}
	if res := v.writeSlot(loc, d); res != FROK {
		return res
	}

	ss := int(v.geom.bytesPerSector)
	buf := make([]byte, uint32(ss)*uint32(v.geom.sectorsPerCluster))
	dot := dirent{firstClust: cluster, attr: attrDirByte}
	copy(dot.name[:], ".          ")
	dotdot := dirent{firstClust: dirCluster, attr: attrDirByte}
	copy(dotdot.name[:], "..         ")
	copy(buf[0:dirEntrySize], encodeDirent(dot))
	copy(buf[dirEntrySize:2*dirEntrySize], encodeDirent(dotdot))
	return v.writeSectors(v.clusterToSector(cluster), int(v.geom.sectorsPerCluster), buf)
}

// Rmdir removes an empty subdirectory entry, returning FRDenied if it
// still has live members beyond "." and "..".
func (v *Volume) Rmdir(dirCluster uint32, isRoot bool, name string) Result {
	d, loc, res := v.lookup(dirCluster, isRoot, name)
	if res != FROK {
		return res
	}
	if !d.isDir() {
		return FRDenied
	}
	entries, res := v.ReadDir(d.firstClust, false)
	if res != FROK {
		return res
	}
	for _, e := range entries {
		if e.Name != "." && e.Name != ".." {
			return FRDenied
		}
	}
	if res := v.freeChain(d.firstClust); res != FROK {
		return res
	}
	return v.eraseEntry(loc)
}

// Unlink removes a file entry and its cluster chain.
func (v *Volume) Unlink(dirCluster uint32, isRoot bool, name string) Result {
	d, loc, res := v.lookup(dirCluster, isRoot, name)
	if res != FROK {
		return res
	}
	if d.isDir() {
		return FRDenied
	}
	if d.firstClust >= 2 {
		if res := v.freeChain(d.firstClust); res != FROK {
			return res
		}
	}
	return v.eraseEntry(loc)
}
