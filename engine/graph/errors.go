package graph

import "errors"

var (
	ErrUnknownNodeType = errors.New("unknown node type")
	ErrDuplicateNode   = errors.New("duplicate node id")
	ErrInvalidNodeData = errors.New("invalid node data")
)
