package main

import (
	"context"
	"encoding/json"
	"log"
	"os"

	"contentforge/engine/internal/appdirs"
	"contentforge/engine/internal/engine"
	"contentforge/engine/internal/envfile"
	"contentforge/engine/internal/envutil"
	"contentforge/engine/internal/errinfo"
	"contentforge/engine/internal/logging"
	"contentforge/engine/internal/rpc"
)

func main() {
	envResult := envfile.Load()
	debug := envutil.Bool("CONTENTFORGE_DEBUG")
	dataDir, err := appdirs.DataDir()
	if err != nil {
		log.Fatalf("engine init failed: %v", err)
	}
	logSetup, logErr := logging.NewFileLogger(dataDir, debug)
	logger := logSetup.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	logger = logger.With("component", "engine")
	if logSetup.Enabled {
		logger.Info("engine.logging_enabled", "path", logSetup.Path)
	}
	if envResult.Loaded {
		logger.Debug("engine.env_loaded", "path", envResult.Path, "keys", envResult.Keys)
	}
	if envResult.Err != nil {
		logger.Warn("engine.env_load_failed", "path", envResult.Path, "error", envResult.Err.Error())
	}
	if logErr != nil {
		logger.Warn("engine.log_setup_failed", "error", logErr.Error())
	}
	if logSetup.Close != nil {
		defer logSetup.Close()
	}

	eng, err := engine.New(engine.WithLogger(logger), engine.WithDataDir(dataDir))
	if err != nil {
		logger.Error("engine.init_failed", "error", err.Error())
		log.Fatalf("engine init failed: %v", err)
	}
	server := rpc.NewServer(engine.APIVersion, os.Stdin, os.Stdout, logger)
	eng.SetNotifier(server.Notify)

	register := func(method string, fn func(context.Context, json.RawMessage) (any, *errinfo.ErrorInfo)) {
		server.Register(method, func(ctx context.Context, params json.RawMessage) (any, *rpc.Error) {
			result, errInfo := fn(ctx, params)
			if errInfo != nil {
				msg := errInfo.ErrorCode
				if errInfo.Detail != "" {
					msg = errInfo.Detail
				}
				return nil, &rpc.Error{Message: msg, Data: errInfo}
			}
			return result, nil
		})
	}

	register("EngineGetInfo", eng.EngineGetInfo)
	register("ProvidersGetStatus", eng.ProvidersGetStatus)
	register("ProvidersSetApiKey", eng.ProvidersSetApiKey)
	register("ProvidersValidate", eng.ProvidersValidate)
	register("ProvidersSelect", eng.ProvidersSelect)
	register("ConfigGetTheme", eng.ConfigGetTheme)
	register("ConfigSetTheme", eng.ConfigSetTheme)

	register("SiteConnect", eng.SiteConnect)
	register("SiteDisconnect", eng.SiteDisconnect)

	register("PostsList", eng.PostsList)
	register("PostsLoadMore", eng.PostsLoadMore)
	register("PostsSetFilter", eng.PostsSetFilter)
	register("PostsSetSort", eng.PostsSetSort)
	register("PostsScore", eng.PostsScore)

	register("WorkflowGetState", eng.WorkflowGetState)
	register("WorkflowOpen", eng.WorkflowOpen)
	register("WorkflowRetryIdeas", eng.WorkflowRetryIdeas)
	register("WorkflowSelectIdea", eng.WorkflowSelectIdea)
	register("WorkflowRegenerate", eng.WorkflowRegenerate)
	register("WorkflowChoosePlacement", eng.WorkflowChoosePlacement)
	register("WorkflowPreviewPlacement", eng.WorkflowPreviewPlacement)
	register("WorkflowInsert", eng.WorkflowInsert)
	register("WorkflowClose", eng.WorkflowClose)

	register("ToolDelete", eng.ToolDelete)

	if err := server.Serve(context.Background()); err != nil {
		logger.Error("rpc.server_error", "error", err.Error())
		log.Fatalf("rpc server error: %v", err)
	}
}
