/*
包 server 提供 HTTP 服务器生命周期管理，支持非阻塞启动、
优雅关闭、关闭钩子与系统信号监听。

jsonforge 用它同时托管 API 端口和独立的 metrics 端口；
缓存、数据库、遥测的释放通过 OnShutdown 钩子挂在 API 服务器上。
*/
package server
