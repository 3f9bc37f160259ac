// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// Cached HTTP date, refreshed at most once per second.

package hemi

import (
	"sync/atomic"
	"time"
)

const httpDateLayout = "Mon, 02 Jan 2006 15:04:05 GMT"

type clockDate struct {
	unix int64
	text string
}

var currentDate atomic.Pointer[clockDate]

// httpDate returns the current time in IMF-fixdate.
func httpDate() string {
	now := time.Now()
	unix := now.Unix()
	if date := currentDate.Load(); date != nil && date.unix == unix {
		return date.text
	}
	date := &clockDate{unix: unix, text: now.UTC().Format(httpDateLayout)}
	currentDate.Store(date)
	return date.text
}
