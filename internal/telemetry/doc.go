// Package telemetry 封装 OpenTelemetry SDK 初始化，为 jsonforge 提供
// TracerProvider、MeterProvider 与进程心跳。遥测禁用时使用 noop 实现，
// 不连接任何外部服务。
package telemetry
