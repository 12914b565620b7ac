// Copyright 2025 Floe ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the dense tensor container used throughout Floe.
//
// # Overview
//
// A RawTensor is a dtype-erased n-dimensional array over reference-counted
// storage. Clone is O(1) and shares storage; mutation requires an exclusive
// view obtained with MakeViewMut, which fails while any clone is alive.
//
// Three element types are supported: BFloat16, Float16 and Float32. All
// CPU kernels compute in float32, converting half precision values at the
// load/store boundary.
//
// # Basic Usage
//
//	x, err := tensor.FromFloat32s(
//	    []float32{1, 2, 3, 4, 5, 6},
//	    tensor.Shape{2, 3},
//	    tensor.Float32,
//	    tensor.Host,
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	y, err := x.Scale(2)
package tensor
