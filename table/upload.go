// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package table

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/grailbio/base/data"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/limiter"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/cas"
)

const (
	// uploadBatchBytes is the approximate request body size at which
	// an upload batch is flushed to the server.
	uploadBatchBytes = 16 << 20
	// maxUploadBuffer bounds the bytes of file data held in memory
	// between the reader pool and the flusher. Files larger than the
	// bound count as one full buffer.
	maxUploadBuffer = 64 << 20

	defaultParallelism = 8
)

// A File is one row of an upload: a path label pair and the file's
// contents.
type File struct {
	// Path identifies the file on the server side. It need not exist
	// on any filesystem the server can see.
	Path string
	// Label is the file's class label, stored in the table's label
	// column.
	Label string
	// Data is the file's contents.
	Data []byte
}

// UploadParams configures Upload.
type UploadParams struct {
	// Pattern is a doublestar glob ("dir/**/*.png") selecting the
	// local files to upload.
	Pattern string
	// Out names the output table.
	Out cas.Table
	// Label derives a file's label from its path. If nil, the label
	// is the base name of the file's parent directory.
	Label func(path string) string
	// Parallelism bounds concurrent file reads. Zero means 8.
	Parallelism int
}

// UploadResult summarizes a completed upload.
type UploadResult struct {
	// Table is the output table.
	Table cas.Table
	// Files is the number of files uploaded.
	Files int
	// Bytes is the total file bytes uploaded.
	Bytes int64
}

// Upload reads the local files matched by the glob pattern and
// uploads them as rows of the output table. Files are read in
// parallel and shipped in batches; rows arrive in no particular
// order. A pattern that matches no regular file is an Invalid error.
func Upload(ctx context.Context, sess *cas.Session, p UploadParams) (*UploadResult, error) {
	matches, err := doublestar.FilepathGlob(p.Pattern)
	if err != nil {
		return nil, errors.E(errors.Invalid, "upload pattern "+p.Pattern, err)
	}
	var (
		paths []string
		sizes []int64
		total int64
	)
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			return nil, errors.E("stat "+path, err)
		}
		if !info.Mode().IsRegular() {
			continue
		}
		paths = append(paths, path)
		sizes = append(sizes, info.Size())
		total += info.Size()
	}
	if len(paths) == 0 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("upload %s: pattern %q matched no files", p.Out, p.Pattern))
	}
	label := p.Label
	if label == nil {
		label = func(path string) string {
			return filepath.Base(filepath.Dir(path))
		}
	}
	parallelism := p.Parallelism
	if parallelism <= 0 {
		parallelism = defaultParallelism
	}
	log.Printf("cas/table: uploading %d files (%s) to %s", len(paths), data.Size(total), p.Out)

	// Readers acquire buffer tokens before loading a file; the
	// flusher releases them once the batch holding the file has been
	// shipped. This caps memory when reads outpace the server.
	lim := limiter.New()
	lim.Release(maxUploadBuffer)
	type buffered struct {
		file   File
		tokens int
	}
	filec := make(chan buffered)
	readErrc := make(chan error, 1)
	go func() {
		readErrc <- traverse.Limit(parallelism).Each(len(paths), func(i int) error {
			n := bufferTokens(int(sizes[i]))
			if err := lim.Acquire(ctx, n); err != nil {
				return err
			}
			body, err := os.ReadFile(paths[i])
			if err != nil {
				lim.Release(n)
				return errors.E("read "+paths[i], err)
			}
			file := File{
				Path:  filepath.ToSlash(paths[i]),
				Label: label(paths[i]),
				Data:  body,
			}
			select {
			case filec <- buffered{file, n}:
				return nil
			case <-ctx.Done():
				lim.Release(n)
				return ctx.Err()
			}
		})
		close(filec)
	}()

	up := uploader{sess: sess, out: p.Out}
	for b := range filec {
		err := up.add(ctx, b.file)
		lim.Release(b.tokens)
		if err != nil {
			// Drain the readers so the goroutine can exit.
			for range filec {
			}
			<-readErrc
			return nil, err
		}
	}
	if err := <-readErrc; err != nil {
		return nil, err
	}
	if err := up.flush(ctx); err != nil {
		return nil, err
	}
	return &UploadResult{Table: p.Out, Files: up.files, Bytes: up.bytes}, nil
}

// bufferTokens is the buffer cost charged for a file of n bytes.
func bufferTokens(n int) int {
	if n < 1 {
		n = 1
	}
	if n > maxUploadBuffer {
		n = maxUploadBuffer
	}
	return n
}

// UploadFiles uploads in-memory files as rows of the output table.
// It is the core used by Upload after globbing and reading, and
// serves callers that produce file bodies themselves, such as
// archive ingest.
func UploadFiles(ctx context.Context, sess *cas.Session, out cas.Table, files []File) (*UploadResult, error) {
	if len(files) == 0 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("upload %s: no files", out))
	}
	up := uploader{sess: sess, out: out}
	for _, file := range files {
		if err := up.add(ctx, file); err != nil {
			return nil, err
		}
	}
	if err := up.flush(ctx); err != nil {
		return nil, err
	}
	return &UploadResult{Table: out, Files: up.files, Bytes: up.bytes}, nil
}

// uploader accumulates files and ships them in size-bounded batches.
// The first batch creates the output table; later batches append.
type uploader struct {
	sess *cas.Session
	out  cas.Table

	batch      []cas.Values
	batchBytes int

	shipped bool
	files   int
	bytes   int64
}

func (u *uploader) add(ctx context.Context, file File) error {
	u.batch = append(u.batch, cas.Values{
		"path":  file.Path,
		"label": file.Label,
		"data":  file.Data,
	})
	u.batchBytes += len(file.Data)
	u.files++
	u.bytes += int64(len(file.Data))
	if u.batchBytes >= uploadBatchBytes {
		return u.flush(ctx)
	}
	return nil
}

func (u *uploader) flush(ctx context.Context) error {
	if len(u.batch) == 0 {
		return nil
	}
	params := cas.Values{
		"casOut": u.out,
		"files":  u.batch,
	}
	if u.shipped {
		params["append"] = true
	}
	_, err := u.sess.Do(ctx, "table.upload", params)
	if err != nil {
		return err
	}
	log.Debug.Printf("cas/table: shipped %d files (%s) to %s", len(u.batch), data.Size(u.batchBytes), u.out)
	u.batch = nil
	u.batchBytes = 0
	u.shipped = true
	return nil
}
