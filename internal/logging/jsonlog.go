package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"sync/atomic"
	"time"
)

type entry struct {
	Level   string         `json:"level"`
	Time    string         `json:"time"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`
}

var levels = map[string]int{"debug": 0, "info": 1, "warn": 2, "error": 3}

var minLevel atomic.Int32

func init() { minLevel.Store(int32(levels["info"])) }

// SetDebug lowers the minimum level to debug when on.
func SetDebug(on bool) {
	if on {
		minLevel.Store(int32(levels["debug"]))
	} else {
		minLevel.Store(int32(levels["info"]))
	}
}

func Log(level, msg string, fields map[string]any) {
	if int32(levels[level]) < minLevel.Load() {
		return
	}
	e := entry{Level: level, Time: time.Now().UTC().Format(time.RFC3339Nano), Message: msg, Fields: fields}
	b, _ := json.Marshal(e)
	fmt.Fprintln(os.Stdout, string(b))
}

func Debug(msg string, fields map[string]any) { Log("debug", msg, fields) }
func Info(msg string, fields map[string]any)  { Log("info", msg, fields) }
func Warn(msg string, fields map[string]any)  { Log("warn", msg, fields) }
func Error(msg string, fields map[string]any) { Log("error", msg, fields) }
