// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/SlotGuard/services/upgrade"
	"github.com/AleutianAI/SlotGuard/services/upgrade/diff"
	"github.com/AleutianAI/SlotGuard/services/upgrade/layout"
	"github.com/AleutianAI/SlotGuard/services/upgrade/resolve"
	"github.com/AleutianAI/SlotGuard/services/upgrade/solidity"
)

// DiffRequest is the POST /v1/diff body. Base and Head carry the layout
// tool's wire JSON verbatim; Source optionally carries the head contract
// source so findings come back with declaration locations.
type DiffRequest struct {
	Contract      string          `json:"contract" binding:"required"`
	Base          json.RawMessage `json:"base" binding:"required"`
	Head          json.RawMessage `json:"head" binding:"required"`
	Source        string          `json:"source,omitempty"`
	CheckRemovals bool            `json:"check_removals,omitempty"`
}

// errorResponse is the uniform error body.
type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// handleDiff compares the two layouts in the request and returns the
// JSON report. Request validation failures are 400; layouts or source
// the server cannot make sense of are 422.
func (s *Server) handleDiff(c *gin.Context) {
	start := time.Now()

	var req DiffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.metrics.RecordCheck(OutcomeInvalid)
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body", Detail: err.Error()})
		return
	}

	base, err := layout.ParseLayout(req.Base)
	if err != nil {
		s.rejectLayout(c, "base", err)
		return
	}
	head, err := layout.ParseLayout(req.Head)
	if err != nil {
		s.rejectLayout(c, "head", err)
		return
	}

	result := diff.Compare(base, head, diff.Options{CheckRemovals: req.CheckRemovals})

	var fds []resolve.FormattedDiff
	if req.Source != "" {
		fds, err = s.resolveWithSource(c, &req, result.Records)
		if err != nil {
			return
		}
	} else {
		fds = resolve.FormatAll(result.Records)
	}

	rep := &upgrade.Report{
		Contract:    req.Contract,
		GeneratedAt: time.Now().UTC(),
		DurationMs:  time.Since(start).Milliseconds(),
		Diffs:       fds,
		Base:        base,
		Head:        head,
	}
	rep.Tally()

	if rep.Passed {
		s.metrics.RecordCheck(OutcomePass)
	} else {
		s.metrics.RecordCheck(OutcomeFail)
	}
	s.metrics.RecordDiffs(fds)

	c.JSON(http.StatusOK, rep)
}

// resolveWithSource scans the submitted head source and anchors every
// record to its declaration. A source that does not declare the contract
// or a diffed variable is a request problem, reported as 422; it has
// already written the response when it returns an error.
func (s *Server) resolveWithSource(c *gin.Context, req *DiffRequest, recs []diff.Record) ([]resolve.FormattedDiff, error) {
	file, err := solidity.NewScanner().Parse(c.Request.Context(), []byte(req.Source), sourcePath(req.Contract))
	if err != nil {
		s.metrics.RecordCheck(OutcomeInvalid)
		c.JSON(http.StatusUnprocessableEntity, errorResponse{Error: "unreadable source", Detail: err.Error()})
		return nil, err
	}

	resolver, err := resolve.NewResolver(file, req.Contract)
	if err != nil {
		s.rejectSourceMismatch(c, err)
		return nil, err
	}
	fds, err := resolver.ResolveAll(recs)
	if err != nil {
		s.rejectSourceMismatch(c, err)
		return nil, err
	}
	return fds, nil
}

func (s *Server) rejectLayout(c *gin.Context, side string, err error) {
	var malformed *layout.MalformedLayoutError
	if errors.As(err, &malformed) {
		s.metrics.RecordCheck(OutcomeInvalid)
		c.JSON(http.StatusUnprocessableEntity, errorResponse{
			Error:  fmt.Sprintf("malformed %s layout", side),
			Detail: err.Error(),
		})
		return
	}
	s.metrics.RecordCheck(OutcomeError)
	s.logger.Error("layout parse failed", "side", side, "error", err)
	c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
}

func (s *Server) rejectSourceMismatch(c *gin.Context, err error) {
	var notFound *resolve.SourceLocationNotFoundError
	if errors.As(err, &notFound) {
		s.metrics.RecordCheck(OutcomeInvalid)
		c.JSON(http.StatusUnprocessableEntity, errorResponse{
			Error:  "source does not match layouts",
			Detail: err.Error(),
		})
		return
	}
	s.metrics.RecordCheck(OutcomeError)
	s.logger.Error("source resolution failed", "error", err)
	c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
}

// sourcePath picks a display path for a source submitted inline: the
// path part of a qualified contract name when present, else the bare
// name with the Solidity extension.
func sourcePath(contract string) string {
	if i := strings.LastIndex(contract, ":"); i >= 0 {
		return contract[:i]
	}
	return contract + ".sol"
}
