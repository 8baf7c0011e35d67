// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package casimage

import (
	"archive/tar"
	"context"
	"io"
	"io/ioutil"
	"path"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/cas"
	"github.com/grailbio/cas/table"
)

// TarFiles reads a tar archive and returns its regular files as
// upload rows. Labels derive from each entry's parent directory, the
// same rule the engine applies when loading a caslib tree.
func TarFiles(r io.Reader) ([]table.File, error) {
	var files []table.File
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.E("read tar", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		body, err := ioutil.ReadAll(tr)
		if err != nil {
			return nil, errors.E("read tar entry "+hdr.Name, err)
		}
		name := path.Clean(strings.TrimPrefix(hdr.Name, "./"))
		label := ""
		if dir := path.Dir(name); dir != "." {
			label = path.Base(dir)
		}
		files = append(files, table.File{Path: name, Label: label, Data: body})
	}
	return files, nil
}

// UploadTar ingests a tar archive of labeled images into a table. The
// archive callback opens a fresh reader; UploadTar closes it. An
// archive with no regular files is an Invalid error.
func UploadTar(ctx context.Context, sess *cas.Session, out cas.Table, archive func() (io.ReadCloser, error)) (*table.UploadResult, error) {
	rc, err := archive()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	files, err := TarFiles(rc)
	if err != nil {
		return nil, err
	}
	return table.UploadFiles(ctx, sess, out, files)
}
