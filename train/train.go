// Copyright 2025 Floe ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package train provides a minibatch training loop.
package train

import (
	"github.com/floe-ml/floe/internal/nn"
	"github.com/floe-ml/floe/internal/train"
)

// Batch pairs one minibatch of inputs with its targets.
type Batch = train.Batch

// LossFunc scores a prediction against a target.
type LossFunc = train.LossFunc

// Config configures a Trainer.
type Config = train.Config

// Trainer runs the forward/backward/update cycle over a model.
type Trainer = train.Trainer

// NewTrainer creates a trainer for the given model.
//
// Example:
//
//	trainer, err := train.NewTrainer(model, train.Config{
//	    Loss:         nn.CrossEntropyLoss,
//	    Optimizer:    optim.NewSGD(optim.SGDConfig{LR: 0.1}),
//	    ShowProgress: true,
//	})
func NewTrainer(model nn.Layer, cfg Config) (*Trainer, error) {
	return train.NewTrainer(model, cfg)
}
