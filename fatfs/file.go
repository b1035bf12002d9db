package fatfs

// OpenMode selects the access mode for [Volume.OpenFile], mirroring the
// FA_READ/FA_WRITE/FA_OPEN_ALWAYS/FA_OPEN_APPEND flag bits FatFs
// exposes and FsService's OpenFile passes through (spec §4.7).
type OpenMode uint8

const (
	ModeRead OpenMode = 1 << iota
	ModeWrite
	ModeCreate
	ModeAppend
)

// File is an open handle to a regular file's data, addressed by its
// directory entry location and first cluster. Every operation on File
// assumes the caller (ultimately [drive.Drive.WithFAT]) serializes
// access; File itself takes no lock (spec §4.4/§4.5).
type File struct {
	vol        *Volume
	dirCluster uint32
	dirIsRoot  bool
	loc        direntLoc
	firstClust uint32
	size       uint32
}

// OpenFile resolves path and returns a handle to it. With ModeCreate set,
// a missing file is created (empty, zero clusters); an existing file is
// reused as-is — callers wanting truncate-on-open semantics call
// SetSize(0) explicitly, matching the explicit-resize contract spec §9
// settled on for truncate-on-shrink.
func (v *Volume) OpenFile(path string, mode OpenMode) (*File, Result) {
	parentClust, parentIsRoot, leaf, res := v.resolveParent(path)
	if res != FROK {
		return nil, res
	}
	if leaf == "" {
		return nil, FRInvalidName
	}

	d, loc, res := v.lookup(parentClust, parentIsRoot, leaf)
	switch {
	case res == FROK:
		if d.isDir() {
			return nil, FRDenied
		}
	case res == FRNoFile && mode&ModeCreate != 0:
		d, loc, res = v.createEntry(parentClust, parentIsRoot, leaf, attrArchive)
		if res != FROK {
			return nil, res
		}
	case res == FRNoFile:
		return nil, FRNoFile
	default:
		return nil, res
	}

	return &File{
		vol:        v,
		dirCluster: parentClust,
		dirIsRoot:  parentIsRoot,
		loc:        loc,
		firstClust: d.firstClust,
		size:       d.size,
	}, FROK
}

// GetSize reports the file's current length in bytes.
func (f *File) GetSize() (uint64, Result) { return uint64(f.size), FROK }

// clusterAtOffset walks (and, if extend, grows) the file's cluster
// chain to the cluster backing byte offset off.
func (f *File) clusterAtOffset(off uint32, extend bool) (uint32, Result) {
	clusterSize := f.vol.ClusterSizeBytes()
	idx := off / clusterSize

	if f.firstClust < 2 {
		if !extend {
			return 0, FRDenied
		}
		c, res := f.vol.allocCluster()
		if res != FROK {
			return 0, res
		}
		f.firstClust = c
		if res := f.vol.writeSlot(f.loc, f.direntSnapshot()); res != FROK {
			return 0, res
		}
	}

	cluster := f.firstClust
	for i := uint32(0); i < idx; i++ {
		next, res := f.vol.readFATEntry(cluster)
		if res != FROK {
			return 0, res
		}
		if f.vol.isEOC(next) {
			if !extend {
				return 0, FRDenied
			}
			next, res = f.vol.appendCluster(cluster)
			if res != FROK {
				return 0, res
			}
		}
		cluster = next
	}
	return cluster, FROK
}

// direntSnapshot rebuilds the on-disk dirent for this file's current
// in-memory state (first cluster, size); the name/attr/timestamps are
// re-read from disk first so they survive unchanged.
func (f *File) direntSnapshot() dirent {
	ss := int(f.vol.geom.bytesPerSector)
	buf := make([]byte, ss)
	_ = f.vol.readSectors(f.loc.sector, 1, buf)
	d := decodeDirent(buf[f.loc.offset : f.loc.offset+dirEntrySize])
	d.firstClust = f.firstClust
	d.size = f.size
	return d
}

// ReadAt reads into buf starting at byte offset off, returning the
// number of bytes actually read (short on a read past end-of-file,
// never an error by itself).
func (f *File) ReadAt(off uint32, buf []byte) (int, Result) {
	if off >= f.size {
		return 0, FROK
	}
	n := len(buf)
	if remain := int(f.size - off); n > remain {
		n = remain
	}
	clusterSize := f.vol.ClusterSizeBytes()
	ss := uint32(f.vol.geom.bytesPerSector)
	spc := uint32(f.vol.geom.sectorsPerCluster)

	read := 0
	for read < n {
		cur := off + uint32(read)
		cluster, res := f.clusterAtOffset(cur, false)
		if res != FROK {
			return read, res
		}
		within := cur % clusterSize
		sector := f.vol.clusterToSector(cluster) + within/ss
		secOff := within % ss

		sbuf := make([]byte, ss)
		if res := f.vol.readSectors(sector, 1, sbuf); res != FROK {
			return read, res
		}
		chunk := int(ss - secOff)
		if remain := n - read; chunk > remain {
			chunk = remain
		}
		copy(buf[read:read+chunk], sbuf[secOff:int(secOff)+chunk])
		read += chunk
		_ = spc
	}
	return read, FROK
}

// WriteAt writes data starting at byte offset off, extending the
// cluster chain and the file's recorded size as needed.
func (f *File) WriteAt(off uint32, data []byte) (int, Result) {
	clusterSize := f.vol.ClusterSizeBytes()
	ss := uint32(f.vol.geom.bytesPerSector)

	written := 0
	n := len(data)
	for written < n {
		cur := off + uint32(written)
		cluster, res := f.clusterAtOffset(cur, true)
		if res != FROK {
			return written, res
		}
		within := cur % clusterSize
		sector := f.vol.clusterToSector(cluster) + within/ss
		secOff := within % ss

		sbuf := make([]byte, ss)
		if res := f.vol.readSectors(sector, 1, sbuf); res != FROK {
			return written, res
		}
		chunk := int(ss - secOff)
		if remain := n - written; chunk > remain {
			chunk = remain
		}
		copy(sbuf[secOff:int(secOff)+chunk], data[written:written+chunk])
		if res := f.vol.writeSectors(sector, 1, sbuf); res != FROK {
			return written, res
		}
		written += chunk
	}

	if newEnd := off + uint32(written); newEnd > f.size {
		f.size = newEnd
	}
	return written, f.Flush()
}

// SetSize resizes the file. Growing pads with unspecified (not
// necessarily zeroed) bytes, matching FatFs f_expand semantics. Shrinking
// releases every cluster beyond the new size — spec §9's resolution of
// the open question on truncate-on-shrink: space is reclaimed
// immediately rather than left allocated until next write.
func (f *File) SetSize(size uint64) Result {
	newSize := uint32(size)
	clusterSize := f.vol.ClusterSizeBytes()

	if newSize < f.size {
		if newSize == 0 {
			if f.firstClust >= 2 {
				if res := f.vol.freeChain(f.firstClust); res != FROK {
					return res
				}
			}
			f.firstClust = 0
		} else {
			lastIdx := (newSize - 1) / clusterSize
			cluster, res := f.clusterAtOffset(lastIdx*clusterSize, false)
			if res != FROK {
				return res
			}
			next, res := f.vol.readFATEntry(cluster)
			if res != FROK {
				return res
			}
			if res := f.vol.writeFATEntry(cluster, f.vol.eocMarker()); res != FROK {
				return res
			}
			if !f.vol.isEOC(next) {
				if res := f.vol.freeChain(next); res != FROK {
					return res
				}
			}
		}
	} else if newSize > f.size && newSize > 0 {
		if _, res := f.clusterAtOffset(newSize-1, true); res != FROK {
			return res
		}
	}

	f.size = newSize
	return f.Flush()
}

// Flush commits the file's current directory entry (size, first
// cluster) to disk without closing the handle.
func (f *File) Flush() Result {
	return f.vol.writeSlot(f.loc, f.direntSnapshot())
}

// Commit is an alias for Flush, matching FatFs's f_sync naming that
// FsService's Commit operation is modeled on (spec §4.7).
func (f *File) Commit() Result { return f.Flush() }
