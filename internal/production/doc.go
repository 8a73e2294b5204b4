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
Package production runs a whole production: every configured workflow,
the optional logger process, and the control endpoint that accepts remote
stop requests.

A Manager is single use. RunProduction launches every workflow in declared
order and returns without waiting; the production stays running while any
workflow monitor is running. StopProduction fans a stop out to every
workflow and waits, bounded by a timeout, for all of them to finish. Only a
completed StopProduction marks the production done.

The control endpoint accepts one request:

	DELETE /api/v1/production
	{"runid": "<run id>", "level": <urgency 0-3>}

It answers 204 and stops the production in the background when the run id
matches, 422 when the body is malformed or names another run, and 400 for
anything else.
*/
package production
