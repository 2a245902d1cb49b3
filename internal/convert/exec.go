package convert

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Runner executes an external program and returns its combined output.
type Runner func(ctx context.Context, bin string, args ...string) ([]byte, error)

// LookPath resolves a program name to an executable path.
type LookPath func(name string) (string, error)

// ExecRunner runs bin as a child process bound to ctx.
func ExecRunner(ctx context.Context, bin string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.WaitDelay = 2 * time.Second
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(out.String())
		if len(msg) > 512 {
			msg = msg[:512]
		}
		if msg != "" {
			return out.Bytes(), fmt.Errorf("%w: %s", err, msg)
		}
		return out.Bytes(), err
	}
	return out.Bytes(), nil
}

type argsFunc func(src, dst string, kind Kind, o Options) []string

// ExecConverter wraps one external program.
type ExecConverter struct {
	name  string
	bin   string
	role  Role
	kinds map[Kind]bool
	args  argsFunc
	opts  Options
	run   Runner
}

func (c *ExecConverter) Name() string            { return c.name }
func (c *ExecConverter) Role() Role              { return c.role }
func (c *ExecConverter) Supports(kind Kind) bool { return c.kinds[kind] }

// Convert runs the program once.
func (c *ExecConverter) Convert(ctx context.Context, src, dst string, kind Kind) error {
	_, err := c.run(ctx, c.bin, c.args(src, dst, kind, c.opts)...)
	return err
}

func gif2webpArgs(src, dst string, _ Kind, o Options) []string {
	q := o.Quality
	if q < 80 {
		q = 80
	}
	return []string{"-q", strconv.Itoa(q), "-m", "4", "-mixed", src, "-o", dst}
}

func magickArgs(src, dst string, kind Kind, o Options) []string {
	if kind == KindAnimated {
		return []string{src, "-coalesce", "-quality", "80", dst}
	}
	return []string{src, "-resize", fmt.Sprintf("%dx>", o.MaxWidth), "-quality", strconv.Itoa(o.Quality), dst}
}

func ffmpegArgs(src, dst string, kind Kind, o Options) []string {
	if kind == KindAnimated {
		return []string{"-i", src,
			"-vcodec", "libwebp", "-lossless", "0",
			"-compression_level", "4", "-q:v", "70",
			"-loop", "0", "-an", "-vsync", "0",
			dst, "-y"}
	}
	return []string{"-i", src,
		"-vf", fmt.Sprintf("scale='min(%d,iw)':-1:flags=lanczos", o.MaxWidth),
		"-q:v", strconv.Itoa(o.Quality), dst, "-y"}
}

// Discover returns an ExecConverter for every supported program lookPath can
// find. A nil lookPath uses exec.LookPath and a nil run uses ExecRunner.
func Discover(lookPath LookPath, run Runner, opts Options) []Converter {
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	if run == nil {
		run = ExecRunner
	}
	opts = opts.withDefaults()

	var out []Converter
	if bin, err := lookPath("gif2webp"); err == nil {
		out = append(out, &ExecConverter{
			name: "gif2webp", bin: bin, role: GifSpecialist,
			kinds: map[Kind]bool{KindAnimated: true},
			args:  gif2webpArgs, opts: opts, run: run,
		})
	}
	// ImageMagick 7 ships "magick"; 6 ships "convert".
	for _, name := range []string{"magick", "convert"} {
		if bin, err := lookPath(name); err == nil {
			out = append(out, &ExecConverter{
				name: "imagemagick", bin: bin, role: GeneralPurpose,
				kinds: map[Kind]bool{KindStill: true, KindAnimated: true},
				args:  magickArgs, opts: opts, run: run,
			})
			break
		}
	}
	if bin, err := lookPath("ffmpeg"); err == nil {
		out = append(out, &ExecConverter{
			name: "ffmpeg", bin: bin, role: Fallback,
			kinds: map[Kind]bool{KindStill: true, KindAnimated: true},
			args:  ffmpegArgs, opts: opts, run: run,
		})
	}
	return out
}
