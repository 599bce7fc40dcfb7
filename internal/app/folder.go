package app

import (
	"context"
	"fmt"
	"net"
	"os"
	"path"
	"path/filepath"

	"github.com/DayanCabrera2003/Link-Chat/internal/protocol"
	"github.com/DayanCabrera2003/Link-Chat/internal/util"
)

// SendFolder transfers a whole directory tree to dst. Each folder level is
// announced with FOLDER_START (relative path) before its files, subfolders
// recurse depth-first, and FOLDER_END closes the level; the receiver
// mirrors the hierarchy from that event order. Files inside use the same
// reliable fragment delivery as single-file sends.
func (a *App) SendFolder(ctx context.Context, dst net.HardwareAddr, root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("cannot read %s: %w", root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", root)
	}

	return a.sendFolder(ctx, dst, root, "")
}

func (a *App) sendFolder(ctx context.Context, dst net.HardwareAddr, dir, rel string) error {
	if err := a.send(dst, protocol.FolderStart{Path: rel}); err != nil {
		return err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("cannot list %s: %w", dir, err)
	}

	// Files first, then subfolders, both in directory order (ReadDir
	// sorts by name). The receiver relies only on the event order, not
	// the grouping, but keeping files together makes progress readable.
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return fmt.Errorf("cannot read %s: %w", filepath.Join(dir, e.Name()), err)
		}
		if _, err := a.sender.SendFile(ctx, dst, e.Name(), data); err != nil {
			return fmt.Errorf("sending %s: %w", path.Join(rel, e.Name()), err)
		}
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		sub := path.Join(rel, e.Name())
		if err := a.sendFolder(ctx, dst, filepath.Join(dir, e.Name()), sub); err != nil {
			return err
		}
	}

	if err := a.send(dst, protocol.FolderEnd{}); err != nil {
		return err
	}

	if rel == "" {
		util.LogInfo("folder %s sent to %s", dir, dst)
	}
	return nil
}
