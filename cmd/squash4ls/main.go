// Command squash4ls lists, prints, and extracts files from a SquashFS 4
// image using package squash4. It exists as a hosted, non-bootloader way to
// exercise the reader: the production consumer is an early-boot loader that
// never has a CLI, but anuvu-squashfs's squashtool shows the same three
// operations (list/extract/cat) make a perfectly normal Go command-line
// tool once you can open one from a regular file.
package main

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sys/unix"

	squash4 "github.com/sqfsboot/squash4"
)

var log = logrus.New()

func openMount(c *cli.Context) (*squash4.Mount, func(), error) {
	if c.Args().Len() < 1 {
		return nil, nil, fmt.Errorf("must give path to a squashfs image")
	}
	f, err := os.Open(c.Args().First())
	if err != nil {
		return nil, nil, fmt.Errorf("opening image: %w", err)
	}
	var opts []squash4.Option
	if c.Bool("strict-fragment-routing") {
		opts = append(opts, squash4.StrictFragmentRouting(true))
	}
	m, err := squash4.OpenReaderAt(f, opts...)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("opening squashfs: %w", err)
	}
	return m, func() { f.Close() }, nil
}

func listMain(c *cli.Context) error {
	m, closeFn, err := openMount(c)
	if err != nil {
		return err
	}
	defer closeFn()

	root := c.Args().Get(1)
	if root == "" {
		root = "."
	}

	return fs.WalkDir(m, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			log.WithError(err).Warnf("walk %s", p)
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		fmt.Printf("%s\t%d\t%s\n", info.Mode(), info.Size(), p)
		return nil
	})
}

func infoMain(c *cli.Context) error {
	m, closeFn, err := openMount(c)
	if err != nil {
		return err
	}
	defer closeFn()

	sb := m.Superblock()
	fmt.Println(sb.String())
	fmt.Printf("created: %s\n", m.Mtime())
	fmt.Printf("flags: %s\n", sb.Flags)
	return nil
}

func catMain(c *cli.Context) error {
	if c.Args().Len() < 2 {
		return fmt.Errorf("usage: squash4ls cat <image> <path>")
	}
	m, closeFn, err := openMount(c)
	if err != nil {
		return err
	}
	defer closeFn()

	data, err := m.ReadFile(c.Args().Get(1))
	if err != nil {
		return fmt.Errorf("reading %s: %w", c.Args().Get(1), err)
	}
	_, err = os.Stdout.Write(data)
	return err
}

func extractMain(c *cli.Context) error {
	m, closeFn, err := openMount(c)
	if err != nil {
		return err
	}
	defer closeFn()

	root := c.String("path")
	outDir := c.String("out")
	if outDir == "" {
		return fmt.Errorf("--out is required")
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", outDir, err)
	}

	e := &extractor{m: m, dir: outDir}
	return fs.WalkDir(m, root, e.visit)
}

// extractor mirrors the shape of anuvu-squashfs/squashtool's Extractor:
// a directory-tree walk that materializes each entry on the host
// filesystem. squash4's Non-goals exclude device nodes, sockets, and
// ownership metadata, so this only handles the three kinds readInode
// decodes: directories, regular files, and symlinks.
type extractor struct {
	m   *squash4.Mount
	dir string
}

func (e *extractor) visit(p string, d fs.DirEntry, err error) error {
	if err != nil {
		return err
	}
	target := filepath.Join(e.dir, p)

	switch {
	case d.IsDir():
		log.Debugf("mkdir %s", target)
		if err := os.MkdirAll(target, 0755); err != nil {
			return err
		}
	case d.Type()&fs.ModeSymlink != 0:
		linkTarget, err := e.m.ReadLink(p)
		if err != nil {
			return err
		}
		log.Debugf("symlink %s -> %s", target, linkTarget)
		if err := os.RemoveAll(target); err != nil {
			return err
		}
		return os.Symlink(linkTarget, target)
	default:
		if err := checkWritable(filepath.Dir(target)); err != nil {
			return err
		}
		log.Debugf("extract %s", target)
		return e.extractFile(p, target)
	}
	return nil
}

// checkWritable mirrors prepWrite's unix.Access check from squashtool: fail
// fast with a clear error rather than midway through a large extraction.
func checkWritable(dir string) error {
	if err := unix.Access(dir, unix.W_OK); err != nil {
		return fmt.Errorf("%s is not writable: %w", dir, err)
	}
	return nil
}

func (e *extractor) extractFile(path, target string) error {
	src, err := e.m.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	return err
}

func main() {
	app := &cli.App{
		Name:  "squash4ls",
		Usage: "inspect and extract SquashFS 4 images",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "debug", Usage: "enable debug logging"},
			&cli.BoolFlag{Name: "strict-fragment-routing", Usage: "route whole-block reads of a fragmented file through the block path instead of always reading through the fragment"},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("debug") {
				log.SetLevel(logrus.DebugLevel)
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "info",
				Usage:     "print image superblock details",
				ArgsUsage: "<image>",
				Action:    infoMain,
			},
			{
				Name:      "list",
				Usage:     "list the contents of a squashfs image",
				ArgsUsage: "<image> [path]",
				Action:    listMain,
			},
			{
				Name:      "cat",
				Usage:     "print a file's contents to stdout",
				ArgsUsage: "<image> <path>",
				Action:    catMain,
			},
			{
				Name:      "extract",
				Usage:     "extract a squashfs image to a directory",
				ArgsUsage: "<image>",
				Action:    extractMain,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "path", Value: "/", Usage: "start at path"},
					&cli.StringFlag{Name: "out", Usage: "output directory (required)"},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
