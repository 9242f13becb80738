package server

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// recentWindow decides between the time and the year column in LIST output.
const recentWindow = 6 * 24 * time.Hour

func (s *session) handlePWD(string) error {
	s.reply(257, s.cwd.String())
	return nil
}

func (s *session) handleCWD(arg string) error {
	return s.changeDir("CWD", s.cwd.apply(arg))
}

func (s *session) handleCDUP(string) error {
	return s.changeDir("CDUP", s.cwd.parent())
}

// changeDir moves the working directory to target if it exists. On failure
// the working directory is left unchanged.
func (s *session) changeDir(verb string, target vpath) error {
	fs, _ := s.userFs()

	dir := target.String()
	ok, err := afero.IsDir(fs, dir)
	if err != nil || !ok {
		s.log.Debug("change directory failed", "cmd", verb, "dir", dir, "error", err)
		s.reply(550, dir)
		return nil
	}

	s.cwd = target
	s.reply(250, verb)
	return nil
}

func (s *session) handleLIST(arg string) error {
	fs, _ := s.userFs()
	path := s.resolve(listPath(arg))

	s.log.Debug("listing", "path", path)
	return s.withDataConnection("LIST", "LIST", func(conn net.Conn) (int64, error) {
		entries, err := readListing(fs, path)
		if err != nil {
			return 0, err
		}

		w := bufio.NewWriter(conn)
		now := time.Now()
		var total int64
		for _, fi := range entries {
			if s.abort.Load() {
				return total, errTransferAborted
			}
			name := fi.Name()
			if name == "." || name == ".." {
				continue
			}
			n, err := w.WriteString(formatListLine(fi, now))
			total += int64(n)
			if err != nil {
				return total, &dataConnError{err}
			}
		}
		if err := w.Flush(); err != nil {
			return total, &dataConnError{err}
		}
		return total, nil
	})
}

// listPath drops ls style flags such as "-la" that many clients send.
func listPath(arg string) string {
	for strings.HasPrefix(arg, "-") {
		_, rest, _ := strings.Cut(arg, " ")
		arg = strings.TrimLeft(rest, " ")
	}
	return arg
}

// readListing returns the entries of the directory at path, or the file
// itself when path names a regular file.
func readListing(fs afero.Fs, path string) ([]os.FileInfo, error) {
	fi, err := fs.Stat(path)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return []os.FileInfo{fi}, nil
	}
	return afero.ReadDir(fs, path)
}

// formatListLine renders one entry in the Unix ls -l style most clients
// parse.
func formatListLine(fi os.FileInfo, now time.Time) string {
	kind := '-'
	if fi.IsDir() {
		kind = 'd'
	}

	mtime := fi.ModTime()
	stamp := mtime.Format("15:04")
	if now.Sub(mtime) > recentWindow {
		stamp = mtime.Format("2006")
	}

	return fmt.Sprintf("%crwxrwxrwx 1 owner group %d %s %5s %s\r\n",
		kind, fi.Size(), mtime.Format("Jan 02"), stamp, fi.Name())
}
