// SPDX-License-Identifier: MPL-2.0

// Package testutil provides helper functions for tests that handle errors
// appropriately, reducing boilerplate and ensuring consistent error handling.
//
// Common helpers include environment variable management (MustSetenv,
// MustUnsetenv, SetConfigDir), filesystem setup (MustMkdirAll, MustWriteFile),
// fake executables for subprocess tests (WriteFakeTool, PrependPath) and a
// semaphore bounding concurrent container tests (ContainerSemaphore).
package testutil
