// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package astore wraps the engine's astore action set. An astore is a
// self-contained scoring artifact exported from trained weights: it
// can be described, scored with, and moved in and out of the engine
// as an opaque blob, independently of the tables it came from. Save
// and UploadFile move blobs through grailbio file paths, so s3://
// URLs work wherever a local path does.
package astore

import (
	"context"
	"encoding/base64"
	"fmt"
	"io/ioutil"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/cas"
	"github.com/grailbio/cas/deeplearn"
)

// Variable is one input or output variable of an astore.
type Variable struct {
	Name string
	Type string
}

// Info describes an astore artifact.
type Info struct {
	// Model is the name of the model the astore was exported from.
	Model string
	// Classes is the number of target classes the model predicts.
	Classes int64
	// Bytes is the serialized size.
	Bytes int64
	// Created is the export time, zero if the artifact does not
	// carry one.
	Created time.Time
	// Inputs and Outputs are the scoring interface.
	Inputs  []Variable
	Outputs []Variable
}

// Describe reports the astore's model, size, and scoring interface
// via astore.describe.
func Describe(ctx context.Context, sess *cas.Session, store cas.Table) (*Info, error) {
	res, err := sess.Do(ctx, "astore.describe", cas.Values{"store": store})
	if err != nil {
		return nil, err
	}
	info := &Info{
		Model:   res.Str("model"),
		Classes: res.Int("classes"),
		Bytes:   res.Int("bytes"),
	}
	if created, ok := res.StrOK("created"); ok {
		t, err := time.Parse(time.RFC3339, created)
		if err == nil {
			info.Created = t
		}
	}
	info.Inputs = variables(res, "InputVariables")
	info.Outputs = variables(res, "OutputVariables")
	return info, nil
}

func variables(res *cas.Results, name string) []Variable {
	tab := res.Table(name)
	if tab == nil {
		return nil
	}
	vars := make([]Variable, tab.NumRows())
	for i := range vars {
		vars[i] = Variable{Name: tab.Str(i, "Name"), Type: tab.Str(i, "Type")}
	}
	return vars
}

// ScoreParams configures Score.
type ScoreParams struct {
	// Store is the astore to score with.
	Store cas.Table
	// Table is the data to score. Its Where restriction applies.
	Table cas.Table
	// Out optionally receives per-row predictions.
	Out cas.Table
	// CopyVars names input columns copied into Out.
	CopyVars []string
}

// Score scores the table through the astore via astore.score. The
// result has the same shape as deeplearn.Score; scoring through an
// astore exported from weights reproduces dlScore's numbers.
func Score(ctx context.Context, sess *cas.Session, p ScoreParams) (*deeplearn.ScoreResult, error) {
	if p.Store.IsZero() {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("astore score %s: no store table", p.Table))
	}
	params := cas.Values{
		"store": p.Store,
		"table": p.Table,
	}
	if !p.Out.IsZero() {
		params["casOut"] = p.Out
	}
	if len(p.CopyVars) > 0 {
		params["copyVars"] = p.CopyVars
	}
	res, err := sess.Do(ctx, "astore.score", params)
	if err != nil {
		return nil, err
	}
	sr := &deeplearn.ScoreResult{
		Rows:          res.Int("nObs"),
		Misclassified: res.Int("misclassified"),
		ErrorPct:      res.Float("errorPct"),
		Loss:          res.Float("loss"),
		Out:           p.Out,
	}
	if tab := res.Table("ByClass"); tab != nil {
		sr.ByClass = make([]deeplearn.ClassError, tab.NumRows())
		for i := range sr.ByClass {
			sr.ByClass[i] = deeplearn.ClassError{
				Label:         tab.Str(i, "Label"),
				N:             tab.Int(i, "N"),
				Misclassified: tab.Int(i, "Misclassified"),
				ErrorPct:      tab.Float(i, "ErrorPct"),
			}
		}
	}
	return sr, nil
}

// Download fetches the astore's serialized blob via astore.download.
func Download(ctx context.Context, sess *cas.Session, store cas.Table) ([]byte, error) {
	res, err := sess.Do(ctx, "astore.download", cas.Values{"store": store})
	if err != nil {
		return nil, err
	}
	encoded, ok := res.StrOK("blob")
	if !ok {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("download %s: no blob in results", store))
	}
	blob, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("download %s: undecodable blob", store), err)
	}
	return blob, nil
}

// Save downloads the astore and writes it to path, which may be a
// local path or any scheme grailbio file supports, such as s3://. An
// empty blob is an Integrity error: the engine handed back a model
// that cannot round-trip.
func Save(ctx context.Context, sess *cas.Session, store cas.Table, path string) (int64, error) {
	blob, err := Download(ctx, sess, store)
	if err != nil {
		return 0, err
	}
	if len(blob) == 0 {
		return 0, errors.E(errors.Integrity, fmt.Sprintf("save %s: engine returned an empty astore", store))
	}
	f, err := file.Create(ctx, path)
	if err != nil {
		return 0, errors.E("create "+path, err)
	}
	if _, err := f.Writer(ctx).Write(blob); err != nil {
		_ = f.Close(ctx)
		return 0, errors.E("write "+path, err)
	}
	if err := f.Close(ctx); err != nil {
		return 0, errors.E("close "+path, err)
	}
	log.Printf("cas/astore: saved %s to %s (%d bytes)", store, path, len(blob))
	return int64(len(blob)), nil
}

// Upload registers a serialized astore blob as a table via
// astore.upload, making it scoreable in this session.
func Upload(ctx context.Context, sess *cas.Session, blob []byte, out cas.Table) (cas.Table, error) {
	if len(blob) == 0 {
		return cas.Table{}, errors.E(errors.Invalid, fmt.Sprintf("upload %s: empty blob", out))
	}
	_, err := sess.Do(ctx, "astore.upload", cas.Values{
		"casOut": out,
		"blob":   blob,
	})
	if err != nil {
		return cas.Table{}, err
	}
	return out, nil
}

// UploadFile reads a saved astore from path (local or s3://) and
// registers it via Upload.
func UploadFile(ctx context.Context, sess *cas.Session, path string, out cas.Table) (cas.Table, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return cas.Table{}, errors.E("open "+path, err)
	}
	blob, err := ioutil.ReadAll(f.Reader(ctx))
	if cerr := f.Close(ctx); err == nil {
		err = cerr
	}
	if err != nil {
		return cas.Table{}, errors.E("read "+path, err)
	}
	return Upload(ctx, sess, blob, out)
}
