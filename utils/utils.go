package utils

import (
	"encoding/json"
	log "github.com/sirupsen/logrus"
	"strconv"
	"strings"
)

func IntFromString(s string, defaultValue int) int {
	atoi, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return defaultValue
	}
	return atoi
}

func ToJson(value any) []byte {
	jsonResp, err := json.Marshal(value)
	if err != nil {
		log.Errorf("Error happened in JSON marshal. Err: %s", err)
	}
	return jsonResp
}

// Recoverer runs f and restarts it in a new goroutine after a panic, at
// most maxPanics times.
func Recoverer(maxPanics int, name string, f func()) {
	defer func() {
		if err := recover(); err != nil {
			log.Errorf("Task %s panicked: %v", name, err)
			if maxPanics == 0 {
				panic("TOO MANY PANICS")
			} else {
				go Recoverer(maxPanics-1, name, f)
			}
		}
	}()
	f()
}
