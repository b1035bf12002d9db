package fsservice

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/ardnew/usbfs/drive"
	"github.com/ardnew/usbfs/fatfs"
	"github.com/ardnew/usbfs/fserr"
	"github.com/ardnew/usbfs/manager"
)

// Default resource bounds, per spec §4.7.
const (
	DefaultMaxSessions   = 61
	DefaultMaxSubObjects = 16384
)

type subKind int

const (
	subKindFile subKind = iota
	subKindDir
)

// subObject is a client-visible handle into an open file or directory,
// keyed by a uuid so it survives independent of any particular RPC
// transport's own connection identity.
type subObject struct {
	kind    subKind
	driveID drive.ID
	path    string
	file    *fatfs.File
}

// EntryType distinguishes a file from a directory, mirroring the
// original fspusb DriveFileSystem::GetEntryTypeImpl's f_stat-based
// query (every fs::fsa::IFileSystem exposes one).
type EntryType int

const (
	EntryTypeFile EntryType = iota
	EntryTypeDirectory
)

// FileTimestamp mirrors spec §4.7's GetFileTimestamp result shape:
// POSIX-epoch seconds, plus validity and a created/accessed flag this
// driver cannot populate from FAT's single write-timestamp field.
type FileTimestamp struct {
	Seconds   int64
	IsValid   bool
	Created   bool
	Accessed  bool
}

// FsService is the RPC-facing file-system surface over a [manager.Manager].
type FsService struct {
	m   *manager.Manager
	sem *semaphore.Weighted

	mu            sync.Mutex
	subObjects    map[uuid.UUID]*subObject
	maxSubObjects int
}

// New creates an FsService bounding concurrent in-flight operations to
// maxSessions and concurrently-open file/dir handles to maxSubObjects.
func New(m *manager.Manager, maxSessions int64, maxSubObjects int) *FsService {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	if maxSubObjects <= 0 {
		maxSubObjects = DefaultMaxSubObjects
	}
	return &FsService{
		m:             m,
		sem:           semaphore.NewWeighted(maxSessions),
		subObjects:    make(map[uuid.UUID]*subObject),
		maxSubObjects: maxSubObjects,
	}
}

// enter bounds concurrent operations at DefaultMaxSessions (or the
// configured override), per spec §4.7.
func (s *FsService) enter(ctx context.Context) (func(), error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("fsservice: session limit: %w", err)
	}
	return func() { s.sem.Release(1) }, nil
}

// ListMountedDrives forces a reconciliation pass and returns the
// resulting set of mounted drive ids (spec §4.7).
func (s *FsService) ListMountedDrives(ctx context.Context) ([]drive.ID, error) {
	done, err := s.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	if err := s.m.Poll(ctx); err != nil {
		return nil, err
	}
	return s.m.ListDriveIDs(), nil
}

// GetDriveFileSystemType reports the FAT variant mounted on id.
func (s *FsService) GetDriveFileSystemType(ctx context.Context, id drive.ID) (fatfs.FSType, error) {
	done, err := s.enter(ctx)
	if err != nil {
		return fatfs.FSUnknown, err
	}
	defer done()

	var fsType fatfs.FSType
	res := s.m.WithDrive(id, func(d *drive.Drive) fatfs.Result {
		return d.WithFAT(func(v *fatfs.Volume) fatfs.Result {
			fsType = v.FSType()
			return fatfs.FROK
		})
	})
	if res != fatfs.FROK {
		return fatfs.FSUnknown, fserr.TranslateFAT(res)
	}
	return fsType, nil
}

// GetLabel returns id's volume label.
func (s *FsService) GetLabel(ctx context.Context, id drive.ID) (string, error) {
	done, err := s.enter(ctx)
	if err != nil {
		return "", err
	}
	defer done()

	var label string
	res := s.m.WithDrive(id, func(d *drive.Drive) fatfs.Result {
		return d.WithFAT(func(v *fatfs.Volume) fatfs.Result {
			l, res := v.GetLabel()
			label = l
			return res
		})
	})
	if res != fatfs.FROK {
		return "", fserr.TranslateFAT(res)
	}
	return label, nil
}

// SetLabel sets id's volume label, truncated to 11 characters; an empty
// label clears it (spec §4.7).
func (s *FsService) SetLabel(ctx context.Context, id drive.ID, label string) error {
	done, err := s.enter(ctx)
	if err != nil {
		return err
	}
	defer done()

	res := s.m.WithDrive(id, func(d *drive.Drive) fatfs.Result {
		return d.WithFAT(func(v *fatfs.Volume) fatfs.Result {
			return v.SetLabel(label)
		})
	})
	if res != fatfs.FROK {
		return fserr.TranslateFAT(res)
	}
	return nil
}

// GetFreeSpace / GetTotalSpace report space in bytes.
func (s *FsService) GetFreeSpace(ctx context.Context, id drive.ID) (uint64, error) {
	return s.spaceOp(ctx, id, (*fatfs.Volume).GetFreeSpace)
}

func (s *FsService) GetTotalSpace(ctx context.Context, id drive.ID) (uint64, error) {
	return s.spaceOp(ctx, id, (*fatfs.Volume).GetTotalSpace)
}

func (s *FsService) spaceOp(ctx context.Context, id drive.ID, op func(*fatfs.Volume) (uint64, fatfs.Result)) (uint64, error) {
	done, err := s.enter(ctx)
	if err != nil {
		return 0, err
	}
	defer done()

	var bytes uint64
	res := s.m.WithDrive(id, func(d *drive.Drive) fatfs.Result {
		return d.WithFAT(func(v *fatfs.Volume) fatfs.Result {
			n, res := op(v)
			bytes = n
			return res
		})
	})
	if res != fatfs.FROK {
		return 0, fserr.TranslateFAT(res)
	}
	return bytes, nil
}

// registerSubObject inserts obj under a fresh uuid, enforcing
// maxSubObjects.
func (s *FsService) registerSubObject(obj *subObject) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.subObjects) >= s.maxSubObjects {
		return uuid.UUID{}, fserr.UnsupportedOperation(fmt.Errorf("fsservice: max sub-objects (%d) reached", s.maxSubObjects))
	}
	id := uuid.New()
	s.subObjects[id] = obj
	return id, nil
}

func (s *FsService) getSubObject(id uuid.UUID, kind subKind) (*subObject, error) {
	s.mu.Lock()
	obj, ok := s.subObjects[id]
	s.mu.Unlock()
	if !ok || obj.kind != kind {
		return nil, fserr.InvalidArgument(fmt.Errorf("fsservice: unknown sub-object %s", id))
	}
	return obj, nil
}

// CloseSubObject releases a file or directory handle.
func (s *FsService) CloseSubObject(id uuid.UUID) {
	s.mu.Lock()
	delete(s.subObjects, id)
	s.mu.Unlock()
}

// OpenFile opens path on driveID under mode, returning a sub-object
// handle for subsequent ReadAt/WriteAt/GetSize/SetSize/Flush/Commit
// calls.
func (s *FsService) OpenFile(ctx context.Context, id drive.ID, path string, mode fatfs.OpenMode) (uuid.UUID, error) {
	done, err := s.enter(ctx)
	if err != nil {
		return uuid.UUID{}, err
	}
	defer done()

	var f *fatfs.File
	res := s.m.WithDrive(id, func(d *drive.Drive) fatfs.Result {
		return d.WithFAT(func(v *fatfs.Volume) fatfs.Result {
			opened, res := v.OpenFile(path, mode)
			f = opened
			return res
		})
	})
	if res != fatfs.FROK {
		return uuid.UUID{}, fserr.TranslateFAT(res)
	}
	return s.registerSubObject(&subObject{kind: subKindFile, driveID: id, path: path, file: f})
}

// ReadAt reads from an open file handle at a byte offset.
func (s *FsService) ReadAt(ctx context.Context, handle uuid.UUID, off uint32, buf []byte) (int, error) {
	done, err := s.enter(ctx)
	if err != nil {
		return 0, err
	}
	defer done()

	obj, err := s.getSubObject(handle, subKindFile)
	if err != nil {
		return 0, err
	}

	var n int
	res := s.m.WithDrive(obj.driveID, func(d *drive.Drive) fatfs.Result {
		return d.WithFAT(func(*fatfs.Volume) fatfs.Result {
			var res fatfs.Result
			n, res = obj.file.ReadAt(off, buf)
			return res
		})
	})
	if res != fatfs.FROK {
		return n, fserr.TranslateFAT(res)
	}
	return n, nil
}

// WriteAt writes to an open file handle at a byte offset.
func (s *FsService) WriteAt(ctx context.Context, handle uuid.UUID, off uint32, data []byte) (int, error) {
	done, err := s.enter(ctx)
	if err != nil {
		return 0, err
	}
	defer done()

	obj, err := s.getSubObject(handle, subKindFile)
	if err != nil {
		return 0, err
	}

	var n int
	res := s.m.WithDrive(obj.driveID, func(d *drive.Drive) fatfs.Result {
		return d.WithFAT(func(*fatfs.Volume) fatfs.Result {
			var res fatfs.Result
			n, res = obj.file.WriteAt(off, data)
			return res
		})
	})
	if res != fatfs.FROK {
		return n, fserr.TranslateFAT(res)
	}
	return n, nil
}

// GetSize / SetSize / Flush / Commit operate on an open file handle.
func (s *FsService) GetSize(ctx context.Context, handle uuid.UUID) (uint64, error) {
	done, err := s.enter(ctx)
	if err != nil {
		return 0, err
	}
	defer done()

	obj, err := s.getSubObject(handle, subKindFile)
	if err != nil {
		return 0, err
	}
	var size uint64
	res := s.m.WithDrive(obj.driveID, func(d *drive.Drive) fatfs.Result {
		return d.WithFAT(func(*fatfs.Volume) fatfs.Result {
			var res fatfs.Result
			size, res = obj.file.GetSize()
			return res
		})
	})
	if res != fatfs.FROK {
		return 0, fserr.TranslateFAT(res)
	}
	return size, nil
}

// SetSize resizes an open file. Shrinking reclaims the freed clusters
// immediately (spec §9's truncate-on-shrink resolution).
func (s *FsService) SetSize(ctx context.Context, handle uuid.UUID, size uint64) error {
	done, err := s.enter(ctx)
	if err != nil {
		return err
	}
	defer done()

	obj, err := s.getSubObject(handle, subKindFile)
	if err != nil {
		return err
	}
	res := s.m.WithDrive(obj.driveID, func(d *drive.Drive) fatfs.Result {
		return d.WithFAT(func(*fatfs.Volume) fatfs.Result {
			return obj.file.SetSize(size)
		})
	})
	if res != fatfs.FROK {
		return fserr.TranslateFAT(res)
	}
	return nil
}

func (s *FsService) Flush(ctx context.Context, handle uuid.UUID) error {
	return s.fileSync(ctx, handle, (*fatfs.File).Flush)
}

func (s *FsService) Commit(ctx context.Context, handle uuid.UUID) error {
	return s.fileSync(ctx, handle, (*fatfs.File).Commit)
}

func (s *FsService) fileSync(ctx context.Context, handle uuid.UUID, op func(*fatfs.File) fatfs.Result) error {
	done, err := s.enter(ctx)
	if err != nil {
		return err
	}
	defer done()

	obj, err := s.getSubObject(handle, subKindFile)
	if err != nil {
		return err
	}
	res := s.m.WithDrive(obj.driveID, func(d *drive.Drive) fatfs.Result {
		return d.WithFAT(func(*fatfs.Volume) fatfs.Result {
			return op(obj.file)
		})
	})
	if res != fatfs.FROK {
		return fserr.TranslateFAT(res)
	}
	return nil
}

// GetFileTimestamp returns path's last-write timestamp translated to a
// POSIX epoch. FAT only stores one write timestamp, so Created and
// Accessed both report false — per spec §4.7's "is_valid=1/created+
// accessed=0" resolution.
func (s *FsService) GetFileTimestamp(ctx context.Context, id drive.ID, path string) (FileTimestamp, error) {
	done, err := s.enter(ctx)
	if err != nil {
		return FileTimestamp{}, err
	}
	defer done()

	var entry fatfs.DirEntry
	res := s.m.WithDrive(id, func(d *drive.Drive) fatfs.Result {
		return d.WithFAT(func(v *fatfs.Volume) fatfs.Result {
			e, res := v.Stat(path)
			entry = e
			return res
		})
	})
	if res != fatfs.FROK {
		return FileTimestamp{}, fserr.TranslateFAT(res)
	}
	return FileTimestamp{Seconds: entry.ModTime.Unix(), IsValid: true}, nil
}

// GetEntryType reports whether path names a file or a directory,
// without opening it. Grounded on DriveFileSystem::GetEntryTypeImpl,
// which f_stats the path and inspects AM_DIR; [fatfs.Volume.Stat]
// already resolves that same f_stat-equivalent lookup, so this is a
// thin projection of its IsDir field.
func (s *FsService) GetEntryType(ctx context.Context, id drive.ID, path string) (EntryType, error) {
	done, err := s.enter(ctx)
	if err != nil {
		return EntryTypeFile, err
	}
	defer done()

	var entry fatfs.DirEntry
	res := s.m.WithDrive(id, func(d *drive.Drive) fatfs.Result {
		return d.WithFAT(func(v *fatfs.Volume) fatfs.Result {
			e, res := v.Stat(path)
			entry = e
			return res
		})
	})
	if res != fatfs.FROK {
		return EntryTypeFile, fserr.TranslateFAT(res)
	}
	if entry.IsDir {
		return EntryTypeDirectory, nil
	}
	return EntryTypeFile, nil
}

// GetEntryCount returns the number of members of an open directory
// handle. Grounded on DriveDirectory::GetEntryCountImpl, which walks
// f_readdir to a count without allocating a DirectoryEntry per member;
// this driver's [fatfs.Volume.ReadDirPath] always materializes the
// full slice, so the saving here is in the RPC surface (no entry
// buffer crosses the wire) rather than in the FAT-level read itself.
func (s *FsService) GetEntryCount(ctx context.Context, handle uuid.UUID) (int64, error) {
	done, err := s.enter(ctx)
	if err != nil {
		return 0, err
	}
	defer done()

	obj, err := s.getSubObject(handle, subKindDir)
	if err != nil {
		return 0, err
	}

	var count int64
	res := s.m.WithDrive(obj.driveID, func(d *drive.Drive) fatfs.Result {
		return d.WithFAT(func(v *fatfs.Volume) fatfs.Result {
			entries, res := v.ReadDirPath(obj.path)
			count = int64(len(entries))
			return res
		})
	})
	if res != fatfs.FROK {
		return 0, fserr.TranslateFAT(res)
	}
	return count, nil
}

// DeleteFile removes a file by path.
func (s *FsService) DeleteFile(ctx context.Context, id drive.ID, path string) error {
	return s.pathOp(ctx, id, func(v *fatfs.Volume) fatfs.Result { return v.UnlinkPath(path) })
}

// RenameFile renames or moves a file or directory by path; directory
// rename uses the same primitive as file rename (spec §9's resolution
// that rename_directory == rename_file).
func (s *FsService) RenameFile(ctx context.Context, id drive.ID, oldPath, newPath string) error {
	return s.pathOp(ctx, id, func(v *fatfs.Volume) fatfs.Result { return v.RenamePath(oldPath, newPath) })
}

// CreateFile creates an empty file at path and closes it immediately;
// callers wanting a handle should use [FsService.OpenFile] with
// fatfs.ModeCreate instead. If a file already exists at path it is left
// unchanged and no error is returned.
func (s *FsService) CreateFile(ctx context.Context, id drive.ID, path string) error {
	return s.pathOp(ctx, id, func(v *fatfs.Volume) fatfs.Result {
		_, res := v.OpenFile(path, fatfs.ModeCreate)
		return res
	})
}

// Mkdir creates a directory at path.
func (s *FsService) Mkdir(ctx context.Context, id drive.ID, path string) error {
	return s.pathOp(ctx, id, func(v *fatfs.Volume) fatfs.Result { return v.MkdirPath(path) })
}

// Rmdir removes an empty directory at path.
func (s *FsService) Rmdir(ctx context.Context, id drive.ID, path string) error {
	return s.pathOp(ctx, id, func(v *fatfs.Volume) fatfs.Result { return v.RmdirPath(path) })
}

// CleanDir removes every member of the directory at path without
// removing the directory itself.
func (s *FsService) CleanDir(ctx context.Context, id drive.ID, path string) error {
	return s.pathOp(ctx, id, func(v *fatfs.Volume) fatfs.Result {
		return removeChildren(v, path)
	})
}

// RemoveDirRecursive deletes the directory at path and everything under
// it, depth-first: children are removed before their parent so a
// directory is always empty by the time Rmdir is called on it. This DFS
// walk lives at the service layer rather than inside [fatfs.Volume]
// (spec §4.7) because it is a policy composed from the primitive
// Unlink/Rmdir/ReadDir operations, not a FAT-level concept.
func (s *FsService) RemoveDirRecursive(ctx context.Context, id drive.ID, path string) error {
	return s.pathOp(ctx, id, func(v *fatfs.Volume) fatfs.Result {
		if res := removeChildren(v, path); res != fatfs.FROK {
			return res
		}
		return v.RmdirPath(path)
	})
}

// removeChildren deletes every entry under path, recursing into
// subdirectories first.
func removeChildren(v *fatfs.Volume, path string) fatfs.Result {
	entries, res := v.ReadDirPath(path)
	if res != fatfs.FROK {
		return res
	}
	for _, e := range entries {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		childPath := path + "/" + e.Name
		if path == "" {
			childPath = e.Name
		}
		if e.IsDir {
			if res := removeChildren(v, childPath); res != fatfs.FROK {
				return res
			}
			if res := v.RmdirPath(childPath); res != fatfs.FROK {
				return res
			}
		} else if res := v.UnlinkPath(childPath); res != fatfs.FROK {
			return res
		}
	}
	return fatfs.FROK
}

func (s *FsService) pathOp(ctx context.Context, id drive.ID, fn func(*fatfs.Volume) fatfs.Result) error {
	done, err := s.enter(ctx)
	if err != nil {
		return err
	}
	defer done()

	res := s.m.WithDrive(id, func(d *drive.Drive) fatfs.Result {
		return d.WithFAT(fn)
	})
	if res != fatfs.FROK {
		return fserr.TranslateFAT(res)
	}
	return nil
}

// OpenDir opens path as a directory handle for [FsService.ReadDir].
func (s *FsService) OpenDir(ctx context.Context, id drive.ID, path string) (uuid.UUID, error) {
	done, err := s.enter(ctx)
	if err != nil {
		return uuid.UUID{}, err
	}
	defer done()

	res := s.m.WithDrive(id, func(d *drive.Drive) fatfs.Result {
		return d.WithFAT(func(v *fatfs.Volume) fatfs.Result {
			_, res := v.Stat(path)
			return res
		})
	})
	if res != fatfs.FROK {
		return uuid.UUID{}, fserr.TranslateFAT(res)
	}
	return s.registerSubObject(&subObject{kind: subKindDir, driveID: id, path: path})
}

// ReadDir lists an open directory handle's members.
func (s *FsService) ReadDir(ctx context.Context, handle uuid.UUID) ([]fatfs.DirEntry, error) {
	done, err := s.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	obj, err := s.getSubObject(handle, subKindDir)
	if err != nil {
		return nil, err
	}

	var entries []fatfs.DirEntry
	res := s.m.WithDrive(obj.driveID, func(d *drive.Drive) fatfs.Result {
		return d.WithFAT(func(v *fatfs.Volume) fatfs.Result {
			e, res := v.ReadDirPath(obj.path)
			entries = e
			return res
		})
	})
	if res != fatfs.FROK {
		return nil, fserr.TranslateFAT(res)
	}
	return entries, nil
}
