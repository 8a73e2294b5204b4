// Copyright 2025 Tom Barlow
//
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

/*
Package client sends stop requests to a running production's control
endpoint.

	c, err := client.New("127.0.0.1:40123")
	if err != nil {
	    return err
	}
	err = c.Stop(ctx, runID, lifecycle.Checkpoint)

A 204 answer means the production accepted the request and is shutting
down in the background. Any other answer is returned as a *StatusError
carrying the endpoint's status and message.
*/
package client
