package dumper

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/jlaffaye/ftp"
)

// FTPConn is the subset of an FTP session a dump needs.
type FTPConn interface {
	Size(path string) (int64, error)
	ModTime(path string) (time.Time, error)
	Fetch(path string) (io.ReadCloser, error)
	Close() error
}

// Dialer opens an FTP session.
type Dialer func(ctx context.Context, host string) (FTPConn, error)

// FTPConfig describes an FTP source.
type FTPConfig struct {
	Name  string
	Host  string
	Dir   string
	Files []string
}

// FTPDumper mirrors a fixed set of files from an FTP directory.
type FTPDumper struct {
	cfg     FTPConfig
	archive Archive
	dial    Dialer
	now     func() time.Time
}

// NewFTPDumper creates a dumper. A nil dial uses an anonymous jlaffaye/ftp session.
func NewFTPDumper(cfg FTPConfig, archive Archive, dial Dialer) *FTPDumper {
	if dial == nil {
		dial = DialAnonymous
	}
	return &FTPDumper{cfg: cfg, archive: archive, dial: dial, now: time.Now}
}

// NewInterProDumper returns the dumper for the InterPro release files.
func NewInterProDumper(host, dir string, archive Archive) *FTPDumper {
	return NewFTPDumper(FTPConfig{
		Name:  "interpro",
		Host:  host,
		Dir:   dir,
		Files: []string{"interpro.xml.gz", "protein2ipr.dat.gz"},
	}, archive, nil)
}

// Name implements Dumper.
func (d *FTPDumper) Name() string { return d.cfg.Name }

// Dump implements Dumper. A file is fetched when forced, when there is no
// current copy, or when the remote copy is newer or differs in size.
func (d *FTPDumper) Dump(ctx context.Context, req Request) (*Result, error) {
	conn, err := d.dial(ctx, d.cfg.Host)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", d.cfg.Host, err)
	}
	defer conn.Close()

	release := d.now().Format("20060102")
	folder := d.archive.Folder(d.cfg.Name, release)

	var todo []string
	for _, file := range d.cfg.Files {
		remote := d.cfg.Dir + file
		current := ""
		if req.Current != nil && req.Current.DataFolder != "" {
			current = filepath.Join(req.Current.DataFolder, file)
		}
		better, err := d.remoteIsBetter(conn, remote, current)
		if err != nil {
			return nil, err
		}
		if req.Force || better {
			todo = append(todo, file)
			continue
		}
		req.log().Info("skipping", "file", current)
	}
	if len(todo) == 0 {
		return &Result{Skipped: true}, nil
	}

	if err := os.MkdirAll(folder, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", folder, err)
	}
	res := &Result{Release: release, DataFolder: folder}
	for _, file := range todo {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := d.fetch(conn, d.cfg.Dir+file, filepath.Join(folder, file))
		if err != nil {
			return nil, err
		}
		req.log().Info("downloaded", "file", file, "bytes", n)
		res.Files = append(res.Files, file)
		res.Bytes += n
	}
	if err := d.carryOver(req, folder, todo, res); err != nil {
		return nil, err
	}
	return res, nil
}

// carryOver links the files that were not fetched from the current release
// folder into the new one, so the new folder is complete before older
// releases are pruned.
func (d *FTPDumper) carryOver(req Request, folder string, fetched []string, res *Result) error {
	if req.Current == nil || req.Current.DataFolder == "" || filepath.Clean(req.Current.DataFolder) == filepath.Clean(folder) {
		return nil
	}
	for _, file := range d.cfg.Files {
		if slices.Contains(fetched, file) {
			continue
		}
		src := filepath.Join(req.Current.DataFolder, file)
		if _, err := os.Stat(src); err != nil {
			continue
		}
		if err := linkOrCopy(src, filepath.Join(folder, file)); err != nil {
			return fmt.Errorf("failed to carry over %s: %w", file, err)
		}
		req.log().Info("kept from previous release", "file", file, "from", req.Current.DataFolder)
		res.Files = append(res.Files, file)
	}
	return nil
}

// linkOrCopy hardlinks src to dest, copying when the link fails. A copy keeps
// the source modification time.
func linkOrCopy(src, dest string) error {
	os.Remove(dest)
	if err := os.Link(src, dest); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	fi, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	_, err = io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dest)
		return err
	}
	return os.Chtimes(dest, fi.ModTime(), fi.ModTime())
}

func (d *FTPDumper) remoteIsBetter(conn FTPConn, remote, local string) (bool, error) {
	if local == "" {
		return true, nil
	}
	fi, err := os.Stat(local)
	if err != nil {
		return true, nil
	}
	size, err := conn.Size(remote)
	if err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", remote, err)
	}
	if size != fi.Size() {
		return true, nil
	}
	mtime, err := conn.ModTime(remote)
	if err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", remote, err)
	}
	return mtime.After(fi.ModTime()), nil
}

func (d *FTPDumper) fetch(conn FTPConn, remote, dest string) (int64, error) {
	r, err := conn.Fetch(remote)
	if err != nil {
		return 0, fmt.Errorf("failed to retrieve %s: %w", remote, err)
	}
	defer r.Close()

	tmp := dest + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return n, fmt.Errorf("failed to download %s: %w", remote, err)
	}
	return n, os.Rename(tmp, dest)
}

type ftpConn struct {
	c *ftp.ServerConn
}

// DialAnonymous logs into host as anonymous. Port 21 is used when host has none.
func DialAnonymous(ctx context.Context, host string) (FTPConn, error) {
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "21")
	}
	c, err := ftp.Dial(host, ftp.DialWithContext(ctx), ftp.DialWithTimeout(30*time.Second))
	if err != nil {
		return nil, err
	}
	if err := c.Login("anonymous", "anonymous"); err != nil {
		c.Quit()
		return nil, err
	}
	return &ftpConn{c: c}, nil
}

func (f *ftpConn) Size(path string) (int64, error) { return f.c.FileSize(path) }

func (f *ftpConn) ModTime(path string) (time.Time, error) { return f.c.GetTime(path) }

func (f *ftpConn) Fetch(path string) (io.ReadCloser, error) { return f.c.Retr(path) }

func (f *ftpConn) Close() error { return f.c.Quit() }
