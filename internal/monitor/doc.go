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
Package monitor tracks one submitted workflow until the scheduler, its
loggers, or a stop request say it is finished.

A Monitor owns exactly one background goroutine. Each iteration it waits
(the full status interval, or not at all while events are arriving), takes
at most one event from the bus, then asks the scheduler whether the job is
still listed. When the job is gone it tells the run's loggers to finish,
exactly once, and ends when every registered logger has reported back or
the grace period runs out.

Scheduler failures during polling are classified: transient failures are
logged and the job is assumed alive for that cycle; anything else ends the
loop and reports the workflow failed.

The {running, done} pair is a lifecycle.Flag. Stop clears running right
away, kills the job and wakes the loop so it can finish without waiting out
the interval.
*/
package monitor
