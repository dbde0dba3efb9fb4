package handler

import (
	"context"

	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/metainfo"
	"git.home.luguber.info/inful/sitebuilder/internal/node"
	"git.home.luguber.info/inful/sitebuilder/internal/site"
)

// MetaInfo registers meta information backing files with the resolver. It
// creates no nodes; the nodes a backing contributes to track its file.
type MetaInfo struct {
	Base
}

// NewMetaInfo creates the backing file handler.
func NewMetaInfo() *MetaInfo {
	return &MetaInfo{Base{name: "metainfo"}}
}

func (m *MetaInfo) CreateNodes(_ context.Context, env *site.Env, in *Input) ([]*node.Node, error) {
	data, err := in.Path.Bytes()
	if err != nil {
		return nil, NewNodeCreationError(in.Path.Path, m.name,
			errors.FileSystemError("cannot read backing file").WithCause(err).Build())
	}
	b, errs := metainfo.ParseBacking(in.Path.Path, data)
	b.File = in.Path.SourcePath
	for _, err := range errs {
		env.Log().Warn("Malformed meta information backing",
			logfields.Backing(in.Path.Path),
			logfields.Error(err))
	}
	if env.Resolver != nil {
		env.Resolver.AddBacking(b)
	}
	return nil, nil
}
