// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import "fmt"

// fmtBackend is the default Backend, printing to stdout via fmt.

var fmtTags = map[Level]string{
	LevelDebug: "D:",
	LevelInfo:  "I:",
	LevelWarn:  "W:",
	LevelError: "E:",
}

type fmtBackend struct {
	level Level
}

// NewFmtBackend creates the default fmt.Println-based Backend.
func NewFmtBackend() Backend {
	return &fmtBackend{level: LevelDebug}
}

func (f *fmtBackend) Name() string { return "fmt" }

func (f *fmtBackend) Enabled(l Level) bool { return l >= f.level }

func (f *fmtBackend) Log(level Level, source, message string) {
	fmt.Println(fmtTags[level], "["+source+"]", message)
}
