/*
 * Copyright 2025 SREDiag Authors
 * Copyright 2023 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package shm

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/valyala/bytebufferpool"
)

// maxDumpBytes caps the payload preview of DebugRegionDetail.
const maxDumpBytes = 64

// FormatRegionDetail renders the header and a payload preview of a raw region image.
func FormatRegionDetail(name string, mem []byte, sized bool) string {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	l := Layout{Sized: sized}
	if len(mem) < l.HeaderLen() {
		_, _ = fmt.Fprintf(buf, "region:%s size:%d too small for header\n", name, len(mem))
		return buf.String()
	}
	h := DecodeHeader(mem, sized)
	_, _ = buf.WriteString("region:")
	_, _ = buf.WriteString(name)
	_, _ = buf.WriteString(" size:")
	_, _ = buf.WriteString(strconv.Itoa(len(mem)))
	_, _ = buf.WriteString(" begin:")
	_, _ = buf.WriteString(strconv.FormatUint(uint64(h.VersionBegin), 10))
	_, _ = buf.WriteString(" end:")
	_, _ = buf.WriteString(strconv.FormatUint(uint64(h.VersionEnd), 10))
	if sized {
		_, _ = buf.WriteString(" hint:")
		_, _ = buf.WriteString(strconv.FormatUint(uint64(h.BytesUpdatedHint), 10))
	}
	if h.Consistent() {
		_, _ = buf.WriteString(" state:idle\n")
	} else {
		_, _ = buf.WriteString(" state:writing\n")
	}

	payload := mem[l.HeaderLen():]
	if len(payload) > maxDumpBytes {
		payload = payload[:maxDumpBytes]
	}
	dumper := hex.Dumper(buf)
	_, _ = dumper.Write(payload)
	_ = dumper.Close()
	return buf.String()
}

// DebugRegionDetail prints the header of the region file at path. The file is read, not
// mapped, so the printed header may be torn if a writer is active.
func DebugRegionDetail(w io.Writer, path string, sized bool) error {
	mem, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, FormatRegionDetail(path, mem, sized))
	return err
}
