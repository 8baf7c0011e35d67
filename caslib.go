// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package cas

import (
	"context"

	"github.com/grailbio/base/errors"
)

// CaslibInfo describes a caslib: a named data source against which
// tables are loaded and saved.
type CaslibInfo struct {
	Name    string
	Path    string
	Subdirs bool
}

// AddCaslib creates a caslib with the given name, rooted at the
// given path. Paths may name local directories or s3:// prefixes,
// resolved on the server. If subdirs is true, the caslib exposes
// files below subdirectories of the root, and relative paths within
// the caslib may carry directory components.
func (s *Session) AddCaslib(ctx context.Context, name, path string, subdirs bool) error {
	_, err := s.Do(ctx, "table.addCaslib", Values{
		"name":           name,
		"path":           path,
		"subdirectories": subdirs,
	})
	return err
}

// DropCaslib removes the named caslib. Tables loaded from the caslib
// remain live; only the data source binding is removed.
func (s *Session) DropCaslib(ctx context.Context, name string) error {
	_, err := s.Do(ctx, "table.dropCaslib", Values{"name": name})
	return err
}

// Caslibs lists the session's caslibs.
func (s *Session) Caslibs(ctx context.Context) ([]CaslibInfo, error) {
	res, err := s.Do(ctx, "table.caslibInfo", nil)
	if err != nil {
		return nil, err
	}
	t := res.Table("CASLibInfo")
	if t == nil {
		return nil, errors.E(errors.Invalid, "table.caslibInfo: no CASLibInfo table in results")
	}
	infos := make([]CaslibInfo, t.NumRows())
	for i := range infos {
		infos[i] = CaslibInfo{
			Name:    t.Str(i, "Name"),
			Path:    t.Str(i, "Path"),
			Subdirs: t.Int(i, "Subdirs") != 0,
		}
	}
	return infos, nil
}
