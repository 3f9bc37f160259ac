// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// Hotline server. Serves files of the [static] section, or a small built-in application, over HTTP/1.x.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/astaxie/beego/config"

	. "github.com/hexinfra/hotline/hemi"
)

var (
	configFile = flag.String("config", "", "path of the ini config file")
	debugLevel = flag.Int("debug", 0, "debug level, 0 to 3")
	logTarget  = flag.String("log", "stderr", "log target")
	logLevel   = flag.String("level", "info", "log level")
)

func main() {
	flag.Parse()
	SetDebugLevel(int32(*debugLevel))

	logger, err := CreateLogger("zap", &LogConfig{Target: *logTarget, Level: *logLevel})
	if err != nil {
		EnvExitln(err.Error())
	}
	defer logger.Close()
	SetDefaultLogger(logger)

	var conf config.Configer
	if *configFile != "" {
		if conf, err = LoadConfigFile(*configFile); err != nil {
			UseExitln(err.Error())
		}
	}

	var adapter Adapter = AdapterFunc(hello)
	if conf != nil {
		if _, err := conf.GetSection("static"); err == nil {
			static := NewStaticAdapter(logger)
			if err := static.Configure(NewConfig(conf, "static")); err != nil {
				UseExitln(err.Error())
			}
			adapter = static
		}
	}
	protocol := NewHTTP1Protocol(adapter)
	if err := protocol.Configure(NewConfig(conf, "http1")); err != nil {
		UseExitln(err.Error())
	}
	gateConfig := new(GateConfig)
	if err := gateConfig.Configure(NewConfig(conf, "gate")); err != nil {
		UseExitln(err.Error())
	}
	gate, err := NewGate(protocol, gateConfig)
	if err != nil {
		UseExitln(err.Error())
	}
	if err := gate.Open(); err != nil {
		EnvExitln(err.Error())
	}

	go func() {
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
		<-signals
		logger.Logf("shutting down")
		protocol.Pause()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := gate.Shut(ctx); err != nil {
			logger.Warnf("shut: %v", err)
		}
	}()

	logger.Logf("hotline %s serving %s gate on %s", Version, gateConfig.Kind, gateConfig.Address)
	if err := gate.Serve(); err != nil {
		EnvExitln(err.Error())
	}
	stats := protocol.Stats()
	logger.Logf("served requests=%d errors=%d", stats.Requests, stats.Errors)
}

func hello(req *Request, resp *Response) error {
	resp.SetContentType("text/plain; charset=utf-8")
	_, err := resp.WriteString(fmt.Sprintf("hello, %s %s\n", req.Method(), req.Path()))
	return err
}
