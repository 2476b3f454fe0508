// Package http exposes the booking services as a JSON API on a chi router.
//
// Every response uses one envelope: {"data": ...} on success and
// {"errorKind", "message", "errors"} on failure, where errorKind is
// application.ErrorKind of the service error. Authenticated routes expect
// "Authorization: Bearer <token>" as issued by POST /auth/login.
//
// Routes:
//   - POST /auth/register, /auth/login, /auth/refresh, /auth/logout
//   - GET /me, GET and PATCH /me/settings
//   - GET /halls, GET /halls/{id}, GET /halls/{id}/conflicts; admin: POST
//     /halls, PUT /halls/{id}, PUT /halls/{id}/maintenance
//   - POST /bookings, GET /bookings/{id}, POST /bookings/{id}/cancel|rate;
//     admin: GET /bookings, GET /bookings/analytics, POST
//     /bookings/{id}/approve|reject
//   - GET /users/{id}/bookings, GET /users/{id}/stats; admin: GET /users,
//     PUT /users/{id}/role, PUT /users/{id}/active, DELETE /users/{id}
//   - admin: GET /approvals, POST /approvals/approve, POST /approvals/reject
//   - GET /notifications, GET /notifications/unread-count, POST
//     /notifications/{id}/read, POST /notifications/read-all, DELETE
//     /notifications/{id}
//   - GET /notifications/stream: server-sent events. Sends an "unread" event,
//     the notifications after Last-Event-ID, then live "notification"
//     events. A "lagged" event precedes closing a subscriber that fell behind.
//   - admin: POST /announcements
//
// Request DTOs are validated with go-playground/validator before they reach
// a service.
package http
