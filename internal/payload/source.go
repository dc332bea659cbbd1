// SPDX-License-Identifier: MPL-2.0

package payload

import "fmt"

// Source renders the payload program. It prints readyMarker and the payload
// line once on startup, then a heartbeat every 600 frames so a hot-patched
// value shows up without a restart.
func Source(readyMarker string, value Value) string {
	return fmt.Sprintf(`use bevy::prelude::*;

const READY_MARKER: &str = %q;
const PAYLOAD_RANDOM_VALUE: u64 = %d;

fn main() {
    App::new()
        .add_plugins(DefaultPlugins)
        .add_systems(Startup, announce_ready)
        .add_systems(Update, (report_payload, heartbeat))
        .run();
}

fn announce_ready() {
    println!("{}", READY_MARKER);
}

fn report_payload(mut last: Local<u64>) {
    if *last != PAYLOAD_RANDOM_VALUE {
        *last = PAYLOAD_RANDOM_VALUE;
        println!("PAYLOAD_RANDOM_VALUE={}", PAYLOAD_RANDOM_VALUE);
    }
}

fn heartbeat(mut ticks: Local<u32>) {
    *ticks += 1;
    if *ticks %% 600 == 0 {
        println!("PAYLOAD_HEARTBEAT::{}::{}", READY_MARKER, *ticks);
    }
}
`, readyMarker, uint64(value))
}
