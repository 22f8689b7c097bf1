package model

import "errors"

// ErrModelMissing marks a registry lookup for a slug or id no loaded model answers to.
var ErrModelMissing = errors.New("model missing")

// ErrFieldMissing marks a lookup for a field that is not present on its model.
var ErrFieldMissing = errors.New("field missing")

// ErrRowMissing marks an update or destroy aimed at a row that does not exist.
var ErrRowMissing = errors.New("row missing")

// ErrReciprocalSetup marks a collection/part setup whose peer cannot be
// resolved. Setup propagates it; teardown logs and swallows it so a partial
// teardown can finish.
var ErrReciprocalSetup = errors.New("reciprocal setup failed")
