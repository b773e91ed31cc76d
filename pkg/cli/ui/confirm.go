/* Copyright 2025 Tillsync Authors
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

// Package ui provides interactive prompts of the CLI
package ui

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/tillsync/tillsync/pkg/cli/log"
)

// FormatQuestion appends the choices to a yes/no question. The capitalized choice is
// the answer assumed on empty input.
func FormatQuestion(question string, optimistic bool) string {
	if optimistic {
		return fmt.Sprintf("%s (Y/n)", question)
	}

	return fmt.Sprintf("%s (y/N)", question)
}

// ReadYesNo reads one answer from r. Input that ends before a line is complete
// counts as an empty answer.
func ReadYesNo(r io.Reader, optimistic bool) (bool, error) {
	input, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, errors.Wrap(err, "reading answer")
	}

	switch strings.ToLower(strings.TrimSpace(input)) {
	case "y", "yes":
		return true, nil
	case "":
		return optimistic && err == nil, nil
	default:
		return false, nil
	}
}

// Confirm asks a yes/no question on the console and reads the answer from r
func Confirm(r io.Reader, question string, optimistic bool) (bool, error) {
	log.Askf("%s", FormatQuestion(question, optimistic))

	return ReadYesNo(r, optimistic)
}
